package cclear

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/cpacket/appliance-registrar/apiclient"
	"github.com/cpacket/appliance-registrar/credentials"
	"github.com/cpacket/appliance-registrar/reconciler"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// metricsConfigPath is read without a trailing slash, unlike the registry.
const metricsConfigPath = "/cfg/metrics_config"

// Doer issues a JSON REST call. *apiclient.Client implements it.
type Doer interface {
	Do(ctx context.Context, req apiclient.Request, out any) error
}

// Registry reads the devices a controller currently knows.
type Registry struct {
	client  Doer
	profile Profile
	auth    credentials.BasicAuth
	logger  *zap.Logger
}

func NewRegistry(client Doer, profile Profile, auth credentials.BasicAuth, logger *zap.Logger) *Registry {
	return &Registry{client: client, profile: profile, auth: auth, logger: logger}
}

// ListRegistered returns the controller's cVu-V devices. When the profile
// joins metrics, devices missing from either listing are dropped. Any
// failure returns an error; a partial registry is never returned.
func (r *Registry) ListRegistered(ctx context.Context, controllerIP string) ([]reconciler.RegisteredDevice, error) {
	logger := r.logger.With(zap.String("controller", controllerIP), zap.String("profile", r.profile.Name))

	var raw json.RawMessage
	if err := r.get(ctx, controllerIP, r.profile.RegistryPath, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to read device registry")
	}
	entries, err := parseRegistry(logger, r.profile.RegistryShape, raw)
	if err != nil {
		logger.Error("failed to parse device registry", zap.Error(err))
		return nil, err
	}

	if !r.profile.JoinMetrics {
		devices := make([]reconciler.RegisteredDevice, 0, len(entries))
		for _, e := range entries {
			devices = append(devices, reconciler.RegisteredDevice{ControllerDeviceID: e.ID, IP: e.IP, Name: e.Name})
		}
		return devices, nil
	}

	raw = nil
	if err := r.get(ctx, controllerIP, metricsConfigPath, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to read metrics config")
	}
	metrics, err := parseMetricsConfig(raw)
	if err != nil {
		logger.Error("failed to parse metrics config", zap.Error(err))
		return nil, err
	}
	if len(metrics) != len(entries) {
		logger.Info("metrics config does not match registered devices",
			zap.Int("registered", len(entries)), zap.Int("metrics", len(metrics)))
	}
	return join(entries, metrics), nil
}

// join keeps the entries present in both listings. The metrics config
// supplies the device ID.
func join(entries []registryEntry, metrics map[string]metricsEntry) []reconciler.RegisteredDevice {
	devices := make([]reconciler.RegisteredDevice, 0, len(entries))
	for _, e := range entries {
		m, ok := metrics[e.Name]
		if !ok {
			continue
		}
		id := m.DeviceOID
		if id == "" {
			id = e.ID
		}
		devices = append(devices, reconciler.RegisteredDevice{
			ControllerDeviceID: id,
			IP:                 e.IP,
			Name:               e.Name,
			MetricsEnabled:     m.Collect,
		})
	}
	return devices
}

func (r *Registry) get(ctx context.Context, host, path string, out any) error {
	auth := r.auth
	return r.client.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		URL:    applianceURL(host, path),
		Auth:   &auth,
	}, out)
}

func applianceURL(host, path string) string {
	u := url.URL{Scheme: "https", Host: host, Path: path}
	return u.String()
}
