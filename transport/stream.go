package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/glimte/hostbridge/contracts"
)

const defaultMaxMessageSize = 4 * 1024 * 1024

// StreamHost is a Host speaking newline-delimited JSON over a reader/writer
// pair, typically the stdio pipes shared with a native shell process.
type StreamHost struct {
	r              io.Reader
	w              io.Writer
	logger         *slog.Logger
	maxMessageSize int

	writeMu sync.Mutex

	mu      sync.RWMutex
	handler func(data []byte)
	closed  bool
	err     error

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

// StreamOption configures a StreamHost
type StreamOption func(*StreamHost)

// WithStreamLogger sets the logger
func WithStreamLogger(logger *slog.Logger) StreamOption {
	return func(h *StreamHost) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMaxMessageSize bounds a single inbound line
func WithMaxMessageSize(size int) StreamOption {
	return func(h *StreamHost) {
		if size > 0 {
			h.maxMessageSize = size
		}
	}
}

// NewStreamHost creates a stream host. Call Start to begin reading.
func NewStreamHost(r io.Reader, w io.Writer, opts ...StreamOption) *StreamHost {
	h := &StreamHost{
		r:              r,
		w:              w,
		logger:         slog.Default(),
		maxMessageSize: defaultMaxMessageSize,
		done:           make(chan struct{}),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Start launches the read loop. Cancelling ctx closes the host.
func (h *StreamHost) Start(ctx context.Context) {
	h.startOnce.Do(func() {
		go h.readLoop()
		go func() {
			select {
			case <-ctx.Done():
				h.Close()
			case <-h.done:
			}
		}()
	})
}

// PostMessage implements Host
func (h *StreamHost) PostMessage(data []byte) error {
	if !h.Available() {
		return contracts.ErrHostUnavailable
	}

	line := make([]byte, 0, len(data)+1)
	line = append(line, data...)
	line = append(line, '\n')

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if _, err := h.w.Write(line); err != nil {
		return fmt.Errorf("stream host write: %w", err)
	}
	return nil
}

// SetMessageHandler implements Host
func (h *StreamHost) SetMessageHandler(fn func(data []byte)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if fn != nil && h.handler != nil {
		return contracts.ErrDuplicateSubscription
	}
	h.handler = fn
	return nil
}

// Available implements AvailabilityReporter
func (h *StreamHost) Available() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return !h.closed
}

// Done implements Terminator. It is closed once the read loop has stopped.
func (h *StreamHost) Done() <-chan struct{} {
	return h.done
}

// Err returns the error that ended the read loop, if any
func (h *StreamHost) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Close marks the host unavailable and closes the writer when it is closable
func (h *StreamHost) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()

		if c, ok := h.w.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}

func (h *StreamHost) readLoop() {
	defer close(h.done)

	initial := 64 * 1024
	if initial > h.maxMessageSize {
		initial = h.maxMessageSize
	}
	scanner := bufio.NewScanner(h.r)
	scanner.Buffer(make([]byte, 0, initial), h.maxMessageSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		// scanner reuses its buffer
		data := make([]byte, len(line))
		copy(data, line)

		h.mu.RLock()
		handler := h.handler
		h.mu.RUnlock()

		if handler == nil {
			h.logger.Debug("stream host message dropped, no handler", "bytes", len(data))
			continue
		}
		handler(data)
	}

	err := scanner.Err()
	h.mu.Lock()
	h.closed = true
	if err != nil && !errors.Is(err, io.EOF) {
		h.err = err
	}
	h.mu.Unlock()

	if err != nil {
		h.logger.Warn("stream host read loop stopped", "error", err)
	} else {
		h.logger.Debug("stream host reached end of input")
	}
}
