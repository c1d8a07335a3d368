// Package reconciler converges a controller's device registry toward the
// devices present in a scale set.
//
// Registration is additive: a desired device whose address the controller
// already knows is left alone. Removal needs two signals: the device must be
// missing from the scale set and must fail a liveness probe, so a transient
// gap in the cloud inventory never deregisters a live appliance.
package reconciler

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// Mutator performs single registry changes. Every method either succeeds
// or returns an error that has already been logged.
type Mutator interface {
	// Register adds the device and returns its controller ID.
	Register(ctx context.Context, d DesiredDevice) (string, error)
	Authenticate(ctx context.Context, deviceID string) error
	EnableMetrics(ctx context.Context, deviceID, name string) error
	ConfigureDownstream(ctx context.Context, applianceIP string) error
	Deregister(ctx context.Context, deviceID string) error
}

// Prober checks whether the appliance at ip is alive.
type Prober interface {
	Probe(ctx context.Context, ip string) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, ip string) error

func (f ProberFunc) Probe(ctx context.Context, ip string) error {
	return f(ctx, ip)
}

// Step names one operation of a pass.
type Step string

const (
	StepRegister            Step = "register"
	StepAuthenticate        Step = "authenticate"
	StepEnableMetrics       Step = "enable_metrics"
	StepConfigureDownstream Step = "configure_downstream"
	StepProbe               Step = "probe"
	StepDeregister          Step = "deregister"
)

// Failure records an operation that failed during a pass.
type Failure struct {
	IP   string
	Step Step
	Err  error
}

// Result summarizes a pass. Addresses appear in processing order.
type Result struct {
	// Present holds the desired addresses known to the controller after the
	// pass, whether registered earlier or now.
	Present []string
	// Registered holds the addresses registered by this pass.
	Registered []string
	// Deregistered holds the addresses removed by this pass.
	Deregistered []string
	// Kept holds the stale addresses left registered because they answered
	// the probe.
	Kept   []string
	Failed []Failure
}

// Reconciler drives one pass at a time. It keeps no state between passes.
type Reconciler struct {
	mutator    Mutator
	prober     Prober
	logger     *zap.Logger
	downstream bool
}

type Option func(*Reconciler)

// WithDownstream enables the configure-downstream step after metrics are
// enabled for a new device.
func WithDownstream(enabled bool) Option {
	return func(r *Reconciler) {
		r.downstream = enabled
	}
}

func New(mutator Mutator, prober Prober, logger *zap.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		mutator: mutator,
		prober:  prober,
		logger:  logger,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Reconcile registers the desired devices the controller does not know and
// deregisters the registered devices that are neither desired nor alive.
// Individual failures are recorded in the Result and never stop the pass.
func (r *Reconciler) Reconcile(ctx context.Context, desired []DesiredDevice, registered []RegisteredDevice) Result {
	var res Result

	registeredByIP := make(map[string]RegisteredDevice, len(registered))
	for _, d := range registered {
		registeredByIP[d.IP] = d
	}

	present := make(map[string]struct{}, len(desired))
	// an address is handled once per pass, even when its registration failed
	attempted := make(map[string]struct{}, len(desired))
	for _, d := range desired {
		logger := r.logger.With(zap.String("ip", d.PrivateIPAddress), zap.String("name", d.StableID))
		if _, ok := attempted[d.PrivateIPAddress]; ok {
			logger.Warn("duplicate address in inventory")
			continue
		}
		attempted[d.PrivateIPAddress] = struct{}{}
		if _, ok := registeredByIP[d.PrivateIPAddress]; ok {
			logger.Info("already registered")
			present[d.PrivateIPAddress] = struct{}{}
			res.Present = append(res.Present, d.PrivateIPAddress)
			continue
		}

		id, err := r.mutator.Register(ctx, d)
		observe(StepRegister, err)
		if err != nil {
			logger.Info("skipping device due to registration error", zap.Error(err))
			res.Failed = append(res.Failed, Failure{IP: d.PrivateIPAddress, Step: StepRegister, Err: err})
			continue
		}
		logger.Info("registered", zap.String("device_id", id))
		present[d.PrivateIPAddress] = struct{}{}
		res.Present = append(res.Present, d.PrivateIPAddress)
		res.Registered = append(res.Registered, d.PrivateIPAddress)

		if step, err := r.configure(ctx, d, id); err != nil {
			logger.Info("skipping remaining steps", zap.String("step", string(step)), zap.Error(err))
			res.Failed = append(res.Failed, Failure{IP: d.PrivateIPAddress, Step: step, Err: err})
		}
	}

	stale := make([]string, 0, len(registeredByIP))
	for ip := range registeredByIP {
		if _, ok := present[ip]; !ok {
			stale = append(stale, ip)
		}
	}
	sort.Strings(stale)

	for _, ip := range stale {
		d := registeredByIP[ip]
		logger := r.logger.With(zap.String("ip", ip), zap.String("device_id", d.ControllerDeviceID))

		err := r.prober.Probe(ctx, ip)
		observe(StepProbe, err)
		if err == nil {
			logger.Info("skipping removal, device is still alive")
			res.Kept = append(res.Kept, ip)
			continue
		}
		if ctx.Err() != nil {
			// a cancelled probe says nothing about the device
			logger.Warn("pass cancelled, stopping removals", zap.Error(ctx.Err()))
			res.Failed = append(res.Failed, Failure{IP: ip, Step: StepProbe, Err: ctx.Err()})
			break
		}

		logger.Info("removing unreachable device", zap.Error(err))
		err = r.mutator.Deregister(ctx, d.ControllerDeviceID)
		observe(StepDeregister, err)
		if err != nil {
			logger.Error("failed to remove device", zap.Error(err))
			res.Failed = append(res.Failed, Failure{IP: ip, Step: StepDeregister, Err: err})
			continue
		}
		logger.Info("removed device")
		res.Deregistered = append(res.Deregistered, ip)
	}

	r.logger.Info("reconciliation pass complete",
		zap.Strings("present", res.Present),
		zap.Strings("registered", res.Registered),
		zap.Strings("deregistered", res.Deregistered),
		zap.Strings("kept", res.Kept),
		zap.Int("failures", len(res.Failed)))
	return res
}

// configure runs the follow-up chain for a newly registered device and
// returns the first step that failed.
func (r *Reconciler) configure(ctx context.Context, d DesiredDevice, id string) (Step, error) {
	err := r.mutator.Authenticate(ctx, id)
	observe(StepAuthenticate, err)
	if err != nil {
		return StepAuthenticate, err
	}

	err = r.mutator.EnableMetrics(ctx, id, d.StableID)
	observe(StepEnableMetrics, err)
	if err != nil {
		return StepEnableMetrics, err
	}

	if !r.downstream {
		return "", nil
	}
	err = r.mutator.ConfigureDownstream(ctx, d.PrivateIPAddress)
	observe(StepConfigureDownstream, err)
	if err != nil {
		return StepConfigureDownstream, err
	}
	return "", nil
}
