package push

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Loopback is the in-process provider used in development and tests. It
// accepts everything and remembers what it saw.
type Loopback struct {
	mu          sync.Mutex
	sent        []Note
	seq         atomic.Int64
	Fail        func(token string) (int, error) // optional fault injection
	Unreachable bool
}

func NewLoopback() *Loopback { return &Loopback{} }

func (l *Loopback) Push(ctx context.Context, deviceToken string, note Note) (string, int, error) {
	if l.Fail != nil {
		if code, err := l.Fail(deviceToken); err != nil {
			return "", code, err
		}
	}
	l.mu.Lock()
	l.sent = append(l.sent, note)
	l.mu.Unlock()
	return fmt.Sprintf("loopback-%d", l.seq.Add(1)), 200, nil
}

func (l *Loopback) Ping(ctx context.Context) error {
	if l.Unreachable {
		return fmt.Errorf("loopback marked unreachable")
	}
	return nil
}

// Sent returns a copy of every delivered note.
func (l *Loopback) Sent() []Note {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Note, len(l.sent))
	copy(out, l.sent)
	return out
}
