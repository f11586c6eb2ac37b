package auditfeed

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const watchQuery = "?tenant=rail-east&entity_type=booking&entity_id=42"

func waitWatcher(t *testing.T, f *InMemoryFeed, key string) {
	t.Helper()
	for i := 0; i < 100; i++ {
		f.mu.Lock()
		n := len(f.subs[key])
		f.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("watcher never registered")
}

func TestSSEHandlerStream(t *testing.T) {
	f := NewInMemoryFeed()
	srv := httptest.NewServer(SSEHandler(f))
	defer srv.Close()

	key := EntityKey("rail-east", "booking", 42)
	respCh := make(chan *http.Response, 1)
	go func() {
		resp, err := http.Get(srv.URL + watchQuery)
		if err != nil {
			t.Errorf("get: %v", err)
			return
		}
		respCh <- resp
	}()

	waitWatcher(t, f, key)
	if err := f.Publish(context.Background(), key, []byte(`{"revision":1}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var resp *http.Response
	select {
	case resp = <-respCh:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for response")
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := strings.TrimSpace(line); got != `data: {"revision":1}` {
		t.Fatalf("unexpected line %q", got)
	}
}

func TestSSEHandlerMissingParams(t *testing.T) {
	f := NewInMemoryFeed()
	srv := httptest.NewServer(SSEHandler(f))
	defer srv.Close()

	for _, query := range []string{"", "?tenant=rail-east", "?tenant=rail-east&entity_type=booking&entity_id=abc"} {
		resp, err := http.Get(srv.URL + query)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("query %q: expected 400, got %d", query, resp.StatusCode)
		}
	}
}

func TestSSEHandlerContextCancel(t *testing.T) {
	f := NewInMemoryFeed()
	srv := httptest.NewServer(SSEHandler(f))
	defer srv.Close()

	key := EntityKey("rail-east", "booking", 42)
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+watchQuery, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	respCh := make(chan struct{})
	go func() {
		_, _ = http.DefaultClient.Do(req)
		close(respCh)
	}()

	waitWatcher(t, f, key)
	cancel()
	select {
	case <-respCh:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for request to end")
	}

	time.Sleep(50 * time.Millisecond)
	f.mu.Lock()
	n := len(f.subs[key])
	f.mu.Unlock()
	if n != 0 {
		t.Fatal("expected watcher removed")
	}
}

func TestWebSocketHandlerStream(t *testing.T) {
	f := NewInMemoryFeed()
	srv := httptest.NewServer(WebSocketHandler(f))
	defer srv.Close()

	key := EntityKey("rail-east", "booking", 42)
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + watchQuery
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitWatcher(t, f, key)
	if err := f.Publish(context.Background(), key, []byte(`{"revision":1}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(msg) != `{"revision":1}` {
		t.Fatalf("unexpected %s", msg)
	}
}

func TestWebSocketHandlerMissingParams(t *testing.T) {
	f := NewInMemoryFeed()
	srv := httptest.NewServer(WebSocketHandler(f))
	defer srv.Close()

	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", resp)
	}
}
