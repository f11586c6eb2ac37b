// Package errors holds sentinel errors shared by the storage and bus
// backends.
package errors

import "errors"

var (
	ErrTimeout          = errors.New("resv: timeout")
	ErrConnectionClosed = errors.New("resv: connection closed")
)
