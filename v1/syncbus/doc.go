// Package syncbus propagates lock release notifications between service
// instances. Waiters blocked on a contended lock key subscribe to the key's
// release channel instead of polling the lock store; backends exist for
// in-process use, Redis Pub/Sub and NATS.
package syncbus
