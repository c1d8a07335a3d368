package reconciler

// DesiredDevice is a scale set member that should be registered.
type DesiredDevice struct {
	PrivateIPAddress string
	// StableID is the device name on the controller.
	StableID string
	// CloudInstanceID is the owning VM's name within the scale set.
	CloudInstanceID string
}

// RegisteredDevice is a device as the controller currently knows it.
type RegisteredDevice struct {
	ControllerDeviceID string
	IP                 string
	Name               string
	MetricsEnabled     bool
}
