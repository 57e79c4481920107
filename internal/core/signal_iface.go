package core

// Frame is a raw text payload written to a socket.
type Frame []byte

// SignalConnection abstracts a client-facing messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
