package cclear

import (
	"encoding/json"
	"regexp"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const metricsCategory = "cvu"

var (
	// ErrRegistryShape means the registry body is JSON but not in the
	// layout the profile expects.
	ErrRegistryShape = errors.New("unexpected registry layout")
	// ErrMetricsShape is the same for the metrics configuration.
	ErrMetricsShape = errors.New("unexpected metrics config layout")
)

// devURLHost captures the host of a device URL such as https://10.0.0.5/.
var devURLHost = regexp.MustCompile(`//([^/:]+)`)

// registryEntry is one registered device regardless of wire shape. ID is
// empty for the dump shape.
type registryEntry struct {
	Name string
	IP   string
	ID   string
}

type dumpRegistry struct {
	GetDeviceInfo map[string]struct {
		DevURL string `json:"devurl"`
	} `json:"get_device_info"`
}

type listRegistry struct {
	CVU []struct {
		ID   string `json:"_id"`
		IP   string `json:"ip"`
		Name string `json:"name"`
	} `json:"cvu"`
}

// parseRegistry normalizes either registry shape into entries. Entries
// whose address cannot be determined are logged and dropped.
func parseRegistry(logger *zap.Logger, shape Shape, b []byte) ([]registryEntry, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, errors.Wrapf(ErrRegistryShape, "%s: %v", shape, err)
	}

	var entries []registryEntry
	switch shape {
	case ShapeDump:
		if _, ok := fields["get_device_info"]; !ok {
			return nil, errors.Wrapf(ErrRegistryShape, "%s: missing get_device_info", shape)
		}
		var r dumpRegistry
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, errors.Wrapf(ErrRegistryShape, "%s: %v", shape, err)
		}
		for name, d := range r.GetDeviceInfo {
			m := devURLHost.FindStringSubmatch(d.DevURL)
			if m == nil {
				logger.Error("failed to extract IP address", zap.String("name", name), zap.String("devurl", d.DevURL))
				continue
			}
			entries = append(entries, registryEntry{Name: name, IP: m[1]})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	case ShapeList:
		if _, ok := fields["cvu"]; !ok {
			return nil, errors.Wrapf(ErrRegistryShape, "%s: missing cvu", shape)
		}
		var r listRegistry
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, errors.Wrapf(ErrRegistryShape, "%s: %v", shape, err)
		}
		for _, d := range r.CVU {
			if d.IP == "" || d.ID == "" {
				logger.Error("skipping incomplete device record", zap.String("name", d.Name), zap.String("ip", d.IP), zap.String("id", d.ID))
				continue
			}
			entries = append(entries, registryEntry{Name: d.Name, IP: d.IP, ID: d.ID})
		}
	default:
		return nil, errors.Wrapf(ErrRegistryShape, "%s", shape)
	}
	return entries, nil
}

// metricsEntry is the collection state of one device.
type metricsEntry struct {
	DeviceOID string
	Collect   bool
}

type metricsConfig struct {
	Data *struct {
		Metrics *[]struct {
			Category   string `json:"category"`
			DeviceName string `json:"deviceName"`
			DeviceOID  string `json:"deviceOid"`
			Config     *struct {
				Collect *bool `json:"collect"`
			} `json:"config"`
		} `json:"metrics"`
	} `json:"data"`
}

// parseMetricsConfig returns the cVu-V entries of the metrics configuration
// keyed by device name. A missing collect flag counts as enabled.
func parseMetricsConfig(b []byte) (map[string]metricsEntry, error) {
	var mc metricsConfig
	if err := json.Unmarshal(b, &mc); err != nil {
		return nil, errors.Wrapf(ErrMetricsShape, "%v", err)
	}
	if mc.Data == nil {
		return nil, errors.Wrap(ErrMetricsShape, "no data")
	}
	if mc.Data.Metrics == nil {
		return nil, errors.Wrap(ErrMetricsShape, "no metrics")
	}

	out := map[string]metricsEntry{}
	for _, m := range *mc.Data.Metrics {
		if m.Category != metricsCategory {
			continue
		}
		collect := true
		if m.Config != nil && m.Config.Collect != nil {
			collect = *m.Config.Collect
		}
		out[m.DeviceName] = metricsEntry{DeviceOID: m.DeviceOID, Collect: collect}
	}
	return out, nil
}
