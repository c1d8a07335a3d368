package cloud

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Scale set operations that trigger a reconciliation pass.
const (
	OperationScaleSetWrite  = "Microsoft.Compute/virtualMachineScaleSets/write"
	OperationScaleSetDelete = "Microsoft.Compute/virtualMachineScaleSets/delete"
)

var (
	ErrMalformedEvent   = errors.New("malformed scaling event")
	ErrMalformedSubject = errors.New("event subject does not name a scale set")
)

// EventGridEvent is the Event Grid schema as delivered to webhooks and to
// Functions custom handlers.
type EventGridEvent struct {
	ID              string          `json:"id"`
	Topic           string          `json:"topic"`
	Subject         string          `json:"subject"`
	EventType       string          `json:"eventType"`
	EventTime       string          `json:"eventTime,omitempty"`
	DataVersion     string          `json:"dataVersion,omitempty"`
	MetadataVersion string          `json:"metadataVersion,omitempty"`
	Data            json.RawMessage `json:"data"`
}

// ScalingEvent is the part of a resource event a reconciliation pass needs.
type ScalingEvent struct {
	ID            string
	Topic         string
	Subject       string
	EventType     string
	OperationName string
	ResourceGroup string
	ScaleSetName  string
}

// Relevant reports whether the operation changes scale set membership.
func (e ScalingEvent) Relevant() bool {
	return e.OperationName == OperationScaleSetWrite || e.OperationName == OperationScaleSetDelete
}

// ParseEvent decodes a single Event Grid event.
func ParseEvent(b []byte) (ScalingEvent, error) {
	var raw EventGridEvent
	if err := json.Unmarshal(b, &raw); err != nil {
		return ScalingEvent{}, errors.Wrapf(ErrMalformedEvent, "%v", err)
	}
	return FromEventGrid(raw)
}

// FromEventGrid extracts the operation name and, for relevant operations,
// the resource group and scale set named by the subject. Subjects of
// ignored operations are not parsed since they need not name a scale set.
func FromEventGrid(raw EventGridEvent) (ScalingEvent, error) {
	var data struct {
		OperationName string `json:"operationName"`
	}
	if len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, &data); err != nil {
			return ScalingEvent{}, errors.Wrapf(ErrMalformedEvent, "data: %v", err)
		}
	}
	ev := ScalingEvent{
		ID:            raw.ID,
		Topic:         raw.Topic,
		Subject:       raw.Subject,
		EventType:     raw.EventType,
		OperationName: data.OperationName,
	}
	if !ev.Relevant() {
		return ev, nil
	}

	rg, ss, err := ParseSubject(raw.Subject)
	if err != nil {
		return ScalingEvent{}, err
	}
	ev.ResourceGroup, ev.ScaleSetName = rg, ss
	return ev, nil
}

// ParseSubject returns the resource group and scale set named by an ARM
// resource path. Segment names are matched case-insensitively; values are
// the segments that follow them.
func ParseSubject(subject string) (resourceGroup, scaleSet string, err error) {
	resourceGroup = segmentAfter(subject, "resourceGroups")
	scaleSet = segmentAfter(subject, "virtualMachineScaleSets")
	if resourceGroup == "" || scaleSet == "" {
		return "", "", errors.Wrapf(ErrMalformedSubject, "%q", subject)
	}
	return resourceGroup, scaleSet, nil
}

func segmentAfter(path, name string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if strings.EqualFold(parts[i], name) {
			return parts[i+1]
		}
	}
	return ""
}

// lastSegment returns the final element of an ARM resource ID.
func lastSegment(id string) string {
	id = strings.TrimRight(id, "/")
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}
