package cclear

import (
	"github.com/pkg/errors"
)

// Shape is the wire layout of a controller's device registry.
type Shape int

const (
	// ShapeDump is the debug dump: {"get_device_info": {name: {"devurl": ...}}}.
	ShapeDump Shape = iota
	// ShapeList is the device list: {"cvu": [{"_id", "ip", "name"}]}.
	ShapeList
)

func (s Shape) String() string {
	switch s {
	case ShapeDump:
		return "dump"
	case ShapeList:
		return "list"
	default:
		return "unknown"
	}
}

// Profile captures the API differences between controller releases.
type Profile struct {
	Name          string
	RegistryPath  string
	RegistryShape Shape
	// JoinMetrics keeps only registry entries that also appear in the
	// metrics configuration, which then supplies their device ID.
	JoinMetrics       bool
	MetricsConfigPath string
	// MetricsCategory adds "category": "cvu" to the enable-metrics payload.
	MetricsCategory bool
	// ConfigureDownstream pushes stats DB settings into each new appliance.
	ConfigureDownstream bool
}

var (
	// Capture is the profile of capture deployments that expose the debug
	// dump registry.
	Capture = Profile{
		Name:              "capture",
		RegistryPath:      "/cfg/debug/dump/",
		RegistryShape:     ShapeDump,
		JoinMetrics:       true,
		MetricsConfigPath: metricsConfigPath,
		MetricsCategory:   true,
	}
	// Register is the profile of deployments that expose /diag/devices/
	// and accept stats DB settings on the appliance.
	Register = Profile{
		Name:                "register",
		RegistryPath:        "/diag/devices/",
		RegistryShape:       ShapeList,
		MetricsConfigPath:   "/cvu/metrics_config",
		ConfigureDownstream: true,
	}
)

var ErrUnknownProfile = errors.New("unknown appliance profile")

// ProfileByName returns the named profile.
func ProfileByName(name string) (Profile, error) {
	switch name {
	case Capture.Name:
		return Capture, nil
	case Register.Name:
		return Register, nil
	default:
		return Profile{}, errors.Wrapf(ErrUnknownProfile, "%q", name)
	}
}
