package fakes

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

var ErrUnreachable = errors.New("unreachable")

// ProberFake reports the addresses in Dead as unreachable and everything
// else as alive.
type ProberFake struct {
	Dead map[string]bool

	mu     sync.Mutex
	probed []string
}

func (p *ProberFake) Probe(_ context.Context, ip string) error {
	p.mu.Lock()
	p.probed = append(p.probed, ip)
	p.mu.Unlock()
	if p.Dead[ip] {
		return errors.Wrap(ErrUnreachable, ip)
	}
	return nil
}

// Probed returns the probed addresses in order.
func (p *ProberFake) Probed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.probed...)
}
