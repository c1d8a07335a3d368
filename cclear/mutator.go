package cclear

import (
	"context"
	"net/http"

	"github.com/cpacket/appliance-registrar/apiclient"
	"github.com/cpacket/appliance-registrar/credentials"
	"github.com/cpacket/appliance-registrar/reconciler"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	registerPath       = "/rt/data/cvu/modify"
	deregisterPath     = "/rt/data/cvu/delete"
	devAuthPath        = "/rt/data/devauth/modify"
	systemSettingsPath = "/admin-api/2022/system_settings"
)

// ErrMissingDeviceID means registration succeeded without returning an ID.
var ErrMissingDeviceID = errors.New("registration response has no _id")

type registerRequest struct {
	IP        string `json:"ip"`
	Name      string `json:"name"`
	AuthType  string `json:"auth_type"`
	VerifySSL bool   `json:"verify_ssl"`
	DeviceID  string `json:"deviceId"`
}

type registerResponse struct {
	ID string `json:"_id"`
}

type devAuthRequest struct {
	DevID    string `json:"devId"`
	User     string `json:"user"`
	Password string `json:"pwd"`
}

type metricsConfigRequest struct {
	Category   string              `json:"category,omitempty"`
	DeviceOID  string              `json:"device_oid"`
	DeviceName string              `json:"device_name"`
	Config     metricsCollectFlags `json:"config"`
}

type metricsCollectFlags struct {
	Collect bool `json:"collect"`
}

type systemSettingsRequest struct {
	StatsDBUser     string `json:"stats_db_user"`
	StatsDBPassword string `json:"stats_db_pswd"`
	StatsDBServer   string `json:"stats_db_server"`
}

type deleteRequest struct {
	IDs []string `json:"_ids"`
}

// Mutator changes the registry of one controller. Each call is a single
// request that is neither retried nor rolled back.
type Mutator struct {
	client     Doer
	profile    Profile
	auth       credentials.BasicAuth
	controller string
	logger     *zap.Logger
}

var _ reconciler.Mutator = (*Mutator)(nil)

func NewMutator(client Doer, profile Profile, auth credentials.BasicAuth, controllerIP string, logger *zap.Logger) *Mutator {
	return &Mutator{
		client:     client,
		profile:    profile,
		auth:       auth,
		controller: controllerIP,
		logger:     logger.With(zap.String("controller", controllerIP)),
	}
}

// Register adds the device and returns its controller ID.
func (m *Mutator) Register(ctx context.Context, d reconciler.DesiredDevice) (string, error) {
	req := registerRequest{
		IP:        d.PrivateIPAddress,
		Name:      d.StableID,
		AuthType:  "basic",
		VerifySSL: false,
		DeviceID:  d.CloudInstanceID,
	}
	m.logger.Info("registering device", zap.String("ip", d.PrivateIPAddress), zap.String("name", d.StableID), zap.String("instance", d.CloudInstanceID))

	var resp registerResponse
	if err := m.post(ctx, m.controller, registerPath, req, &resp); err != nil {
		return "", errors.Wrapf(err, "failed to register %s", d.PrivateIPAddress)
	}
	if resp.ID == "" {
		m.logger.Error("registration response has no device ID", zap.String("ip", d.PrivateIPAddress))
		return "", errors.Wrapf(ErrMissingDeviceID, "%s", d.PrivateIPAddress)
	}
	return resp.ID, nil
}

// Authenticate stores the service credentials for the device so the
// controller can call it.
func (m *Mutator) Authenticate(ctx context.Context, deviceID string) error {
	req := devAuthRequest{DevID: deviceID, User: m.auth.Username, Password: m.auth.Password}
	if err := m.post(ctx, m.controller, devAuthPath, req, nil); err != nil {
		return errors.Wrapf(err, "failed device authentication for %s", deviceID)
	}
	return nil
}

// EnableMetrics turns on metrics collection for the device.
func (m *Mutator) EnableMetrics(ctx context.Context, deviceID, name string) error {
	req := metricsConfigRequest{
		DeviceOID:  deviceID,
		DeviceName: name,
		Config:     metricsCollectFlags{Collect: true},
	}
	if m.profile.MetricsCategory {
		req.Category = metricsCategory
	}
	if err := m.post(ctx, m.controller, m.profile.MetricsConfigPath, req, nil); err != nil {
		return errors.Wrapf(err, "failed metrics activation for %s", deviceID)
	}
	return nil
}

// ConfigureDownstream points the appliance's stats DB at the controller.
func (m *Mutator) ConfigureDownstream(ctx context.Context, applianceIP string) error {
	req := systemSettingsRequest{
		StatsDBUser:     m.auth.Username,
		StatsDBPassword: m.auth.Password,
		StatsDBServer:   m.controller,
	}
	auth := m.auth
	err := m.client.Do(ctx, apiclient.Request{
		Method: http.MethodPatch,
		URL:    applianceURL(applianceIP, systemSettingsPath),
		Auth:   &auth,
		Body:   req,
	}, nil)
	if err != nil {
		return errors.Wrapf(err, "failed stats DB configuration for %s", applianceIP)
	}
	m.logger.Info("configured stats DB", zap.String("ip", applianceIP))
	return nil
}

// Deregister removes the device from the controller.
func (m *Mutator) Deregister(ctx context.Context, deviceID string) error {
	if err := m.post(ctx, m.controller, deregisterPath, deleteRequest{IDs: []string{deviceID}}, nil); err != nil {
		return errors.Wrapf(err, "failed removal of %s", deviceID)
	}
	return nil
}

func (m *Mutator) post(ctx context.Context, host, path string, body, out any) error {
	auth := m.auth
	return m.client.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		URL:    applianceURL(host, path),
		Auth:   &auth,
		Body:   body,
	}, out)
}
