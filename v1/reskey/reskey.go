// Package reskey derives canonical lock keys from logical resource
// descriptors. Keys are namespaced by tenant so two tenants contending for
// descriptors with identical business fields never share a lock.
package reskey

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoTenant is returned when a key is resolved without a tenant id.
var ErrNoTenant = errors.New("reskey: tenant id required")

// Descriptor is a logical resource that can be locked. Implementations must
// be deterministic: descriptors equal in all key fields produce the same
// string, and fields outside the key must not influence it.
type Descriptor interface {
	LockKey() string
}

// TrainSeat identifies a block of seats on a train for a journey date and
// seat class, the unit of contention for bookings.
type TrainSeat struct {
	TrainID     int64
	JourneyDate time.Time
	SeatClass   string
}

// LockKey implements Descriptor. The journey date is truncated to its day
// and the class upper-cased, so descriptors differing only in time-of-day
// or class casing collapse to the same key.
func (t TrainSeat) LockKey() string {
	return fmt.Sprintf("train:%d:%s:%s",
		t.TrainID,
		t.JourneyDate.Format("2006-01-02"),
		strings.ToUpper(t.SeatClass))
}

// Resolve produces the canonical tenant-scoped lock key for d.
func Resolve(tenantID string, d Descriptor) (string, error) {
	if tenantID == "" {
		return "", ErrNoTenant
	}
	return "resv:" + tenantID + ":" + d.LockKey(), nil
}
