//go:build debug

package channel

// debugOutboxSize caps every outbox so backpressure shows up in local runs.
const debugOutboxSize = 4

// NewOutbox creates an outbox holding up to min(size, debugOutboxSize) messages.
func NewOutbox[T any](size int) *Outbox[T] {
	return newOutbox[T](min(size, debugOutboxSize))
}
