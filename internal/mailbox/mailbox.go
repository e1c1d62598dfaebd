// Package mailbox implements the dispatch channel: a single rendezvous
// exchange multiplexed by destination id.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/me/ossim/pkg/model"
)

var (
	// ErrClosed is returned by Send and Receive once the mailbox is released.
	ErrClosed = errors.New("mailbox closed")
	// ErrForgotten is returned for an address dropped with Forget.
	ErrForgotten = errors.New("address forgotten")
)

// Mailbox delivers each message only to the receiver named in its To field.
// Send blocks until that receiver has taken the message.
type Mailbox struct {
	mu      sync.Mutex
	inboxes map[model.ProcessID]chan model.Message
	gone    map[model.ProcessID]bool
	done    chan struct{}
	closed  bool

	sent     atomic.Int64
	received atomic.Int64
}

// New creates an open mailbox.
func New() *Mailbox {
	return &Mailbox{
		inboxes: make(map[model.ProcessID]chan model.Message),
		gone:    make(map[model.ProcessID]bool),
		done:    make(chan struct{}),
	}
}

func (m *Mailbox) inbox(addr model.ProcessID) (chan model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.gone[addr] {
		return nil, fmt.Errorf("%w: %d", ErrForgotten, addr)
	}
	ch, ok := m.inboxes[addr]
	if !ok {
		ch = make(chan model.Message)
		m.inboxes[addr] = ch
	}
	return ch, nil
}

// Send hands msg to the receiver addressed by msg.To.
func (m *Mailbox) Send(ctx context.Context, msg model.Message) error {
	ch, err := m.inbox(msg.To)
	if err != nil {
		return err
	}
	select {
	case ch <- msg:
		m.sent.Add(1)
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a message addressed to addr arrives.
func (m *Mailbox) Receive(ctx context.Context, addr model.ProcessID) (model.Message, error) {
	ch, err := m.inbox(addr)
	if err != nil {
		return model.Message{}, err
	}
	select {
	case msg := <-ch:
		m.received.Add(1)
		return msg, nil
	case <-m.done:
		return model.Message{}, ErrClosed
	case <-ctx.Done():
		return model.Message{}, ctx.Err()
	}
}

// Forget drops addr's inbox. Later sends to or receives on addr fail with
// ErrForgotten.
func (m *Mailbox) Forget(addr model.ProcessID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inboxes, addr)
	m.gone[addr] = true
}

// Close releases the mailbox and every blocked sender or receiver.
func (m *Mailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	m.inboxes = nil
	return nil
}

// Closed reports whether Close has been called.
func (m *Mailbox) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Sent returns the number of delivered messages.
func (m *Mailbox) Sent() int64 { return m.sent.Load() }

// Received returns the number of messages taken by receivers.
func (m *Mailbox) Received() int64 { return m.received.Load() }
