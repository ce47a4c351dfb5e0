package collab

import "sync"

// mailbox queues messages per recipient. Reading drains the queue.
type mailbox struct {
	mu     sync.Mutex
	queues map[string][]AgentMessage
}

func newMailbox() *mailbox {
	return &mailbox{queues: make(map[string][]AgentMessage)}
}

func (m *mailbox) push(msg AgentMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[msg.To] = append(m.queues[msg.To], msg)
}

// drain pops every queued message for recipient.
func (m *mailbox) drain(recipient string) []AgentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.queues[recipient]
	delete(m.queues, recipient)
	return msgs
}
