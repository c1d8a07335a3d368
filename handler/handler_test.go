package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cpacket/appliance-registrar/apiclient"
	"github.com/cpacket/appliance-registrar/cclear"
	"github.com/cpacket/appliance-registrar/cloud"
	"github.com/cpacket/appliance-registrar/credentials"
	"github.com/cpacket/appliance-registrar/handler"
	"github.com/cpacket/appliance-registrar/reconciler"
	"github.com/cpacket/appliance-registrar/reconciler/fakes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type inventoryFake struct {
	ListF func(ctx context.Context, rg, ss string) ([]reconciler.DesiredDevice, error)
	calls int
}

func (f *inventoryFake) ListDesiredDevices(ctx context.Context, rg, ss string) ([]reconciler.DesiredDevice, error) {
	f.calls++
	return f.ListF(ctx, rg, ss)
}

type locatorFake struct {
	ip  string
	err error
}

func (f *locatorFake) ResolveController(context.Context, string) (string, error) {
	return f.ip, f.err
}

// controller is a minimal cClear-V with a capture-profile registry.
type controller struct {
	srv           *httptest.Server
	registry      string
	metricsConfig string

	mu    sync.Mutex
	calls []string
}

func newController(t *testing.T, registry, metricsConfig string) *controller {
	c := &controller{registry: registry, metricsConfig: metricsConfig}
	c.srv = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.calls = append(c.calls, r.Method+" "+r.URL.Path)
		c.mu.Unlock()
		switch r.Method + " " + r.URL.Path {
		case "GET /cfg/debug/dump/":
			_, _ = w.Write([]byte(c.registry))
		case "GET /cfg/metrics_config":
			_, _ = w.Write([]byte(c.metricsConfig))
		case "POST /rt/data/cvu/modify":
			_, _ = w.Write([]byte(`{"_id": "d5"}`))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(c.srv.Close)
	return c
}

func (c *controller) host() string {
	return c.srv.Listener.Addr().String()
}

func (c *controller) requests() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

var writeEvent = cloud.ScalingEvent{
	ID:            "e1",
	OperationName: cloud.OperationScaleSetWrite,
	ResourceGroup: "capture-rg",
	ScaleSetName:  "cvuv-vmss",
}

func oneDevice(context.Context, string, string) ([]reconciler.DesiredDevice, error) {
	return []reconciler.DesiredDevice{{PrivateIPAddress: "10.0.0.5", StableID: "cvuv-ab12", CloudInstanceID: "vm1"}}, nil
}

func newHandler(inv handler.Inventory, loc handler.Locator, prober reconciler.Prober) *handler.Handler {
	return handler.New(handler.Deps{
		Inventory:   inv,
		Locator:     loc,
		Credentials: credentials.Static{Username: "cpacket", Password: "secret"},
		Client:      apiclient.New(zap.NewNop()),
		Prober:      prober,
		Profile:     cclear.Capture,
	}, zap.NewNop())
}

func TestHandleFullPass(t *testing.T) {
	c := newController(t,
		`{"get_device_info": {"cvuv-999999": {"devurl": "https://10.0.0.9"}}}`,
		`{"data": {"metrics": [{"category": "cvu", "deviceName": "cvuv-999999", "deviceOid": "d9"}]}}`)
	prober := &fakes.ProberFake{Dead: map[string]bool{"10.0.0.9": true}}

	out, err := newHandler(&inventoryFake{ListF: oneDevice}, &locatorFake{ip: c.host()}, prober).Handle(context.Background(), writeEvent)
	require.NoError(t, err)

	assert.Equal(t, handler.StatusCompleted, out.Status)
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, 1, out.Desired)
	assert.Equal(t, 1, out.Registered)
	assert.Equal(t, []string{"10.0.0.5"}, out.Result.Registered)
	assert.Equal(t, []string{"10.0.0.9"}, out.Result.Deregistered)
	assert.Equal(t, []string{
		"GET /cfg/debug/dump/",
		"GET /cfg/metrics_config",
		"POST /rt/data/cvu/modify",
		"POST /rt/data/devauth/modify",
		"POST /cfg/metrics_config",
		"POST /rt/data/cvu/delete",
	}, c.requests())
}

func TestHandleIgnoredOperation(t *testing.T) {
	inv := &inventoryFake{ListF: oneDevice}
	out, err := newHandler(inv, &locatorFake{}, &fakes.ProberFake{}).Handle(context.Background(),
		cloud.ScalingEvent{OperationName: "Microsoft.Compute/virtualMachines/start/action"})
	require.NoError(t, err)
	assert.Equal(t, handler.StatusIgnored, out.Status)
	assert.Zero(t, inv.calls)
}

func TestHandleControllerNotResolved(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantErr    bool
		wantStatus handler.Status
	}{
		{"zero controllers", errors.Wrap(cloud.ErrControllerNotFound, "tag"), false, handler.StatusNoController},
		{"two controllers", errors.Wrap(cloud.ErrControllerAmbiguous, "a,b"), true, ""},
		{"no address", cloud.ErrControllerAddress, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newController(t, `{"get_device_info": {}}`, `{"data": {"metrics": []}}`)
			prober := &fakes.ProberFake{}

			out, err := newHandler(&inventoryFake{ListF: oneDevice}, &locatorFake{err: tt.err}, prober).Handle(context.Background(), writeEvent)
			if tt.wantErr {
				require.ErrorIs(t, err, tt.err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantStatus, out.Status)
			assert.Empty(t, c.requests(), "no controller call may be issued")
			assert.Empty(t, prober.Probed())
		})
	}
}

func TestHandleUnreadableRegistryMakesNoChanges(t *testing.T) {
	c := newController(t, `{"get_device_info": {}}`, `{"unexpected": true}`)
	prober := &fakes.ProberFake{}

	_, err := newHandler(&inventoryFake{ListF: oneDevice}, &locatorFake{ip: c.host()}, prober).Handle(context.Background(), writeEvent)
	require.ErrorIs(t, err, cclear.ErrMetricsShape)
	assert.Equal(t, []string{"GET /cfg/debug/dump/", "GET /cfg/metrics_config"}, c.requests())
	assert.Empty(t, prober.Probed())
}

func TestHandleInventoryFailure(t *testing.T) {
	c := newController(t, `{"get_device_info": {}}`, `{"data": {"metrics": []}}`)
	inv := &inventoryFake{ListF: func(context.Context, string, string) ([]reconciler.DesiredDevice, error) {
		return nil, errors.New("throttled")
	}}

	_, err := newHandler(inv, &locatorFake{ip: c.host()}, &fakes.ProberFake{}).Handle(context.Background(), writeEvent)
	require.Error(t, err)
	assert.Empty(t, c.requests())
}

func TestHandleEmptyScaleSetStillRemovesDeadDevices(t *testing.T) {
	c := newController(t,
		`{"get_device_info": {"cvuv-999999": {"devurl": "https://10.0.0.9"}}}`,
		`{"data": {"metrics": [{"category": "cvu", "deviceName": "cvuv-999999", "deviceOid": "d9"}]}}`)
	inv := &inventoryFake{ListF: func(context.Context, string, string) ([]reconciler.DesiredDevice, error) {
		return nil, nil
	}}
	prober := &fakes.ProberFake{Dead: map[string]bool{"10.0.0.9": true}}

	deleteEvent := writeEvent
	deleteEvent.OperationName = cloud.OperationScaleSetDelete
	out, err := newHandler(inv, &locatorFake{ip: c.host()}, prober).Handle(context.Background(), deleteEvent)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.9"}, out.Result.Deregistered)
	assert.Contains(t, c.requests(), "POST /rt/data/cvu/delete")
}
