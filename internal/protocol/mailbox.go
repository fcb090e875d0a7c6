package protocol

import "sync"

// Mailbox is an unbounded FIFO queue. Post never blocks, so a sender is never
// held up by a slow receiver.
type Mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
}

func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{notify: make(chan struct{}, 1)}
}

func (m *Mailbox[T]) Post(v T) {
	m.mu.Lock()
	m.items = append(m.items, v)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Ready is signaled after a Post; receivers call Drain once it fires.
func (m *Mailbox[T]) Ready() <-chan struct{} {
	return m.notify
}

// Drain returns everything posted so far, oldest first.
func (m *Mailbox[T]) Drain() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}

func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// MailboxHandle adapts a Mailbox of messages to WorkerHandle.
type MailboxHandle struct {
	*Mailbox[Message]
}

var _ WorkerHandle = MailboxHandle{}
