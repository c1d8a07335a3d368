// Package handler runs one reconciliation pass per scaling event.
package handler

import (
	"context"
	"time"

	"github.com/cpacket/appliance-registrar/cclear"
	"github.com/cpacket/appliance-registrar/cloud"
	"github.com/cpacket/appliance-registrar/credentials"
	"github.com/cpacket/appliance-registrar/lock"
	"github.com/cpacket/appliance-registrar/reconciler"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Status is how a handled event ended when no error was returned.
type Status string

const (
	// StatusIgnored means the operation does not change scale set membership.
	StatusIgnored Status = "ignored"
	// StatusNoController means the resource group has no controller yet.
	StatusNoController Status = "no_controller"
	// StatusCompleted means a reconciliation pass ran.
	StatusCompleted Status = "completed"

	outcomeFailed = "failed"
)

type Inventory interface {
	ListDesiredDevices(ctx context.Context, resourceGroup, scaleSet string) ([]reconciler.DesiredDevice, error)
}

type Locator interface {
	ResolveController(ctx context.Context, resourceGroup string) (string, error)
}

// Deps are the collaborators of a Handler.
type Deps struct {
	Inventory   Inventory
	Locator     Locator
	Credentials credentials.Provider
	// Client reaches the controller and appliances.
	Client  cclear.Doer
	Prober  reconciler.Prober
	Profile cclear.Profile
	// Locks serializes passes against the same controller. Optional.
	Locks       *lock.Keyed
	LockTimeout time.Duration
}

// Outcome describes a handled event.
type Outcome struct {
	RunID      string
	Status     Status
	Controller string
	Desired    int
	Registered int
	Result     reconciler.Result
}

type Handler struct {
	deps   Deps
	logger *zap.Logger
}

func New(deps Deps, logger *zap.Logger) *Handler {
	if deps.Locks == nil {
		deps.Locks = lock.NewKeyed()
	}
	return &Handler{deps: deps, logger: logger}
}

// Handle runs a pass for ev. Ignored operations and a missing controller
// are not errors. Any other condition that leaves the pass without a
// trustworthy view of the cloud or the controller aborts it with an error
// before a single change is made.
func (h *Handler) Handle(ctx context.Context, ev cloud.ScalingEvent) (*Outcome, error) {
	out := &Outcome{RunID: uuid.NewString()}
	logger := h.logger.With(
		zap.String("run_id", out.RunID),
		zap.String("event_id", ev.ID),
		zap.String("operation", ev.OperationName))

	if !ev.Relevant() {
		logger.Info("ignoring operation")
		out.Status = StatusIgnored
		events.WithLabelValues(operationLabel(ev), string(out.Status)).Inc()
		return out, nil
	}

	logger = logger.With(zap.String("resource_group", ev.ResourceGroup), zap.String("scale_set", ev.ScaleSetName))
	logger.Info("handling scaling operation", zap.String("subject", ev.Subject))

	err := h.run(ctx, logger, ev, out)
	switch {
	case err == nil:
	case errors.Is(err, cloud.ErrControllerNotFound):
		logger.Info("skipping synchronization", zap.Error(err))
		out.Status = StatusNoController
		err = nil
	default:
		logger.Error("skipping synchronization", zap.Error(err))
	}

	outcome := string(out.Status)
	if err != nil {
		outcome = outcomeFailed
	}
	events.WithLabelValues(operationLabel(ev), outcome).Inc()
	return out, err
}

func (h *Handler) run(ctx context.Context, logger *zap.Logger, ev cloud.ScalingEvent, out *Outcome) error {
	desired, err := h.deps.Inventory.ListDesiredDevices(ctx, ev.ResourceGroup, ev.ScaleSetName)
	if err != nil {
		return errors.Wrap(err, "failed to list desired devices")
	}
	out.Desired = len(desired)
	if len(desired) == 0 {
		logger.Info("no cVu-Vs found in scale set")
	}

	controller, err := h.deps.Locator.ResolveController(ctx, ev.ResourceGroup)
	if err != nil {
		return errors.Wrap(err, "failed to resolve controller")
	}
	out.Controller = controller
	logger = logger.With(zap.String("controller", controller))

	lockCtx := ctx
	if h.deps.LockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, h.deps.LockTimeout)
		defer cancel()
	}
	release, err := h.deps.Locks.Acquire(lockCtx, controller)
	if err != nil {
		return err
	}
	defer release()

	start := time.Now()
	defer func() {
		passDuration.Observe(time.Since(start).Seconds())
	}()

	auth, err := h.deps.Credentials.Credentials(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get appliance credentials")
	}

	registered, err := cclear.NewRegistry(h.deps.Client, h.deps.Profile, auth, logger).ListRegistered(ctx, controller)
	if err != nil {
		return errors.Wrap(err, "failed to get registered devices")
	}
	out.Registered = len(registered)
	if len(registered) == 0 {
		logger.Info("no existing registered cVu-Vs in controller")
	}

	mutator := cclear.NewMutator(h.deps.Client, h.deps.Profile, auth, controller, logger)
	rec := reconciler.New(mutator, h.deps.Prober, logger, reconciler.WithDownstream(h.deps.Profile.ConfigureDownstream))
	out.Result = rec.Reconcile(ctx, desired, registered)
	out.Status = StatusCompleted
	return nil
}

func operationLabel(ev cloud.ScalingEvent) string {
	switch ev.OperationName {
	case cloud.OperationScaleSetWrite:
		return "write"
	case cloud.OperationScaleSetDelete:
		return "delete"
	default:
		return "other"
	}
}
