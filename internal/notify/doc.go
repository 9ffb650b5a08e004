// Package notify delivers structured lifecycle events to the downstream
// automation receiver. Delivery is best effort with bounded retries; a
// failed delivery is an outcome, never an error surfaced to the caller.
package notify
