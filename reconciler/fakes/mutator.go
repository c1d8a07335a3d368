package fakes

import (
	"context"
	"sync"

	"github.com/cpacket/appliance-registrar/reconciler"
)

// Call is one recorded Mutator invocation. Arg is the IP for Register and
// ConfigureDownstream and the device ID otherwise.
type Call struct {
	Op  string
	Arg string
}

// MutatorFake records calls and delegates to the F fields when set. With
// no F field a call succeeds, and Register returns "id-" + IP.
type MutatorFake struct {
	RegisterF            func(context.Context, reconciler.DesiredDevice) (string, error)
	AuthenticateF        func(ctx context.Context, deviceID string) error
	EnableMetricsF       func(ctx context.Context, deviceID, name string) error
	ConfigureDownstreamF func(ctx context.Context, applianceIP string) error
	DeregisterF          func(ctx context.Context, deviceID string) error

	mu    sync.Mutex
	calls []Call
}

var _ reconciler.Mutator = (*MutatorFake)(nil)

func (m *MutatorFake) Register(ctx context.Context, d reconciler.DesiredDevice) (string, error) {
	m.record("register", d.PrivateIPAddress)
	if m.RegisterF != nil {
		return m.RegisterF(ctx, d)
	}
	return "id-" + d.PrivateIPAddress, nil
}

func (m *MutatorFake) Authenticate(ctx context.Context, deviceID string) error {
	m.record("authenticate", deviceID)
	if m.AuthenticateF != nil {
		return m.AuthenticateF(ctx, deviceID)
	}
	return nil
}

func (m *MutatorFake) EnableMetrics(ctx context.Context, deviceID, name string) error {
	m.record("enable_metrics", deviceID)
	if m.EnableMetricsF != nil {
		return m.EnableMetricsF(ctx, deviceID, name)
	}
	return nil
}

func (m *MutatorFake) ConfigureDownstream(ctx context.Context, applianceIP string) error {
	m.record("configure_downstream", applianceIP)
	if m.ConfigureDownstreamF != nil {
		return m.ConfigureDownstreamF(ctx, applianceIP)
	}
	return nil
}

func (m *MutatorFake) Deregister(ctx context.Context, deviceID string) error {
	m.record("deregister", deviceID)
	if m.DeregisterF != nil {
		return m.DeregisterF(ctx, deviceID)
	}
	return nil
}

func (m *MutatorFake) record(op, arg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: op, Arg: arg})
}

// Calls returns the recorded calls in order.
func (m *MutatorFake) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallsTo returns the arguments of the recorded calls to op.
func (m *MutatorFake) CallsTo(op string) []string {
	var args []string
	for _, c := range m.Calls() {
		if c.Op == op {
			args = append(args, c.Arg)
		}
	}
	return args
}
