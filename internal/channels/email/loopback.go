package email

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// LoopbackMailer accepts every message in-process, for development and
// tests.
type LoopbackMailer struct {
	mu   sync.Mutex
	sent []string // "to|subject"
	seq  atomic.Int64
	Code int // optional fault injection: non-zero becomes the API error code
}

func NewLoopbackMailer() *LoopbackMailer { return &LoopbackMailer{} }

func (m *LoopbackMailer) SendMail(ctx context.Context, to, subject, textBody, tag string) (string, int, error) {
	if m.Code > 0 {
		return "", m.Code, fmt.Errorf("injected mail error %d", m.Code)
	}
	m.mu.Lock()
	m.sent = append(m.sent, to+"|"+subject)
	m.mu.Unlock()
	return fmt.Sprintf("mail-%d", m.seq.Add(1)), 0, nil
}

func (m *LoopbackMailer) Ping(ctx context.Context) error { return nil }

// Sent returns every accepted message as "to|subject".
func (m *LoopbackMailer) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	copy(out, m.sent)
	return out
}
