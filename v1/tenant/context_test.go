package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestWithTenantFromContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := FromContext(ctx); ok {
		t.Fatal("unbound context reported a tenant")
	}
	if HasTenant(ctx) {
		t.Fatal("HasTenant true on unbound context")
	}

	ctx = WithTenant(ctx, "rail-east")
	id, ok := FromContext(ctx)
	if !ok || id != "rail-east" {
		t.Fatalf("got (%q, %v), want (rail-east, true)", id, ok)
	}
	if !HasTenant(ctx) {
		t.Fatal("HasTenant false on bound context")
	}
}

func TestRequire(t *testing.T) {
	if _, err := Require(context.Background()); !errors.Is(err, ErrTenantRequired) {
		t.Fatalf("expected ErrTenantRequired, got %v", err)
	}
	id, err := Require(WithTenant(context.Background(), "rail-east"))
	if err != nil || id != "rail-east" {
		t.Fatalf("got (%q, %v)", id, err)
	}
}

func TestEmptyTenantNotBound(t *testing.T) {
	ctx := WithTenant(context.Background(), "")
	if _, ok := FromContext(ctx); ok {
		t.Fatal("empty tenant id should not count as a binding")
	}
	if _, err := Require(ctx); !errors.Is(err, ErrTenantRequired) {
		t.Fatalf("expected ErrTenantRequired, got %v", err)
	}
}

func TestRebindingShadowsOuterTenant(t *testing.T) {
	outer := WithTenant(context.Background(), "rail-east")
	inner := WithTenant(outer, "rail-west")

	if id, _ := FromContext(inner); id != "rail-west" {
		t.Fatalf("inner binding not visible, got %q", id)
	}
	if id, _ := FromContext(outer); id != "rail-east" {
		t.Fatalf("outer binding disturbed, got %q", id)
	}
}

func TestWithActor(t *testing.T) {
	ctx := context.Background()
	if _, ok := ActorFromContext(ctx); ok {
		t.Fatal("unbound context reported an actor")
	}
	ctx = WithActor(ctx, "booking-desk")
	actor, ok := ActorFromContext(ctx)
	if !ok || actor != "booking-desk" {
		t.Fatalf("got (%q, %v)", actor, ok)
	}
}

func TestConcurrentBindingsDoNotLeak(t *testing.T) {
	const workers = 32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			want := fmt.Sprintf("tenant-%d", n)
			ctx := WithTenant(context.Background(), want)
			for j := 0; j < 100; j++ {
				got, err := Require(ctx)
				if err != nil || got != want {
					t.Errorf("binding leaked: got (%q, %v), want %q", got, err, want)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}
