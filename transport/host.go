package transport

// Host is the embedding shell's message channel: one global primitive to post
// a message and one slot for the function that receives inbound messages.
type Host interface {
	// PostMessage hands one encoded envelope to the host
	PostMessage(data []byte) error

	// SetMessageHandler installs the inbound hook; nil removes it. Installing
	// while another hook is present fails with contracts.ErrDuplicateSubscription
	// and leaves the present hook in place.
	SetMessageHandler(fn func(data []byte)) error
}

// AvailabilityReporter is implemented by hosts whose channel can disappear at runtime
type AvailabilityReporter interface {
	Available() bool
}

// Terminator is implemented by hosts that can go away for good. Done is
// closed once the host will never deliver another message.
type Terminator interface {
	Done() <-chan struct{}
}
