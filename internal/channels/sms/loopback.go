package sms

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// LoopbackProvider is the in-process SMS gateway for development and tests.
type LoopbackProvider struct {
	name string
	mu   sync.Mutex
	sent []string // "phone|text"
	seq  atomic.Int64
	Err  error // optional fault injection
}

func NewLoopbackProvider(name string) *LoopbackProvider {
	return &LoopbackProvider{name: name}
}

func (p *LoopbackProvider) Name() string { return p.name }

func (p *LoopbackProvider) SendText(ctx context.Context, phone, text string) (string, error) {
	if p.Err != nil {
		return "", p.Err
	}
	p.mu.Lock()
	p.sent = append(p.sent, phone+"|"+text)
	p.mu.Unlock()
	return fmt.Sprintf("%s-%d", p.name, p.seq.Add(1)), nil
}

func (p *LoopbackProvider) Ping(ctx context.Context) error { return nil }

// Sent returns every delivered message as "phone|text".
func (p *LoopbackProvider) Sent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.sent))
	copy(out, p.sent)
	return out
}
