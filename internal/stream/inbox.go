package stream

import (
	"slices"
	"sync"
)

// Inbox is the arrival-ordered buffer of inbound messages plus the record of
// confirmed subscriptions. The receive loop is its only writer; readers get
// copies.
type Inbox struct {
	mu        sync.RWMutex
	messages  []Message
	confirmed map[string]bool
}

func NewInbox() *Inbox {
	return &Inbox{
		messages:  make([]Message, 0, 64),
		confirmed: make(map[string]bool),
	}
}

// Add appends msg and records any subscription it confirms.
func (b *Inbox) Add(msg Message) {
	channels := msg.ConfirmedChannels()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
	for _, ch := range channels {
		b.confirmed[ch] = true
	}
}

// Snapshot returns a copy of the buffer, optionally filtered by method.
// An empty method returns every message.
func (b *Inbox) Snapshot(method string) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if method == "" {
		out := make([]Message, len(b.messages))
		copy(out, b.messages)
		return out
	}

	out := make([]Message, 0, len(b.messages))
	for _, m := range b.messages {
		if m.Method == method {
			out = append(out, m)
		}
	}
	return out
}

// Len returns the number of buffered messages.
func (b *Inbox) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.messages)
}

// Clear empties the message buffer. Confirmations are kept.
func (b *Inbox) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = b.messages[:0:0]
}

// IsConfirmed reports whether channel was ever acknowledged.
func (b *Inbox) IsConfirmed(channel string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.confirmed[channel]
}

// Confirmed returns every acknowledged channel, sorted.
func (b *Inbox) Confirmed() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.confirmed))
	for ch := range b.confirmed {
		out = append(out, ch)
	}
	slices.Sort(out)
	return out
}
