//go:build !debug

package channel

// NewOutbox creates an outbox holding up to size messages.
func NewOutbox[T any](size int) *Outbox[T] {
	return newOutbox[T](size)
}
