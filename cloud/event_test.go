package cloud_test

import (
	"testing"

	"github.com/cpacket/appliance-registrar/cloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scaleSetSubject = "/subscriptions/0000/resourceGroups/capture-rg/providers/Microsoft.Compute/virtualMachineScaleSets/cvuv-vmss"

func TestParseEvent(t *testing.T) {
	b := []byte(`{
		"id": "e1",
		"topic": "/subscriptions/0000/resourceGroups/capture-rg",
		"subject": "` + scaleSetSubject + `",
		"eventType": "Microsoft.Resources.ResourceWriteSuccess",
		"data": {"operationName": "Microsoft.Compute/virtualMachineScaleSets/write", "status": "Succeeded"}
	}`)

	ev, err := cloud.ParseEvent(b)
	require.NoError(t, err)
	assert.Equal(t, cloud.ScalingEvent{
		ID:            "e1",
		Topic:         "/subscriptions/0000/resourceGroups/capture-rg",
		Subject:       scaleSetSubject,
		EventType:     "Microsoft.Resources.ResourceWriteSuccess",
		OperationName: cloud.OperationScaleSetWrite,
		ResourceGroup: "capture-rg",
		ScaleSetName:  "cvuv-vmss",
	}, ev)
	assert.True(t, ev.Relevant())
}

func TestParseEventIgnoredOperationSkipsSubject(t *testing.T) {
	ev, err := cloud.ParseEvent([]byte(`{"id":"e2","subject":"/subscriptions/0000/resourceGroups/rg","data":{"operationName":"Microsoft.Compute/virtualMachines/write"}}`))
	require.NoError(t, err)
	assert.False(t, ev.Relevant())
	assert.Empty(t, ev.ScaleSetName)
}

func TestParseEventErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"not json", `{`, cloud.ErrMalformedEvent},
		{"bad data", `{"data":"nope"}`, cloud.ErrMalformedEvent},
		{
			"no scale set in subject",
			`{"subject":"/subscriptions/0000/resourceGroups/rg","data":{"operationName":"Microsoft.Compute/virtualMachineScaleSets/delete"}}`,
			cloud.ErrMalformedSubject,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cloud.ParseEvent([]byte(tt.body))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseSubject(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		rg      string
		ss      string
	}{
		{"scale set resource", scaleSetSubject, "capture-rg", "cvuv-vmss"},
		{
			"scale set instance",
			"/subscriptions/0000/resourceGroups/capture-rg/providers/Microsoft.Compute/virtualMachineScaleSets/cvuv-vmss/virtualMachines/3",
			"capture-rg", "cvuv-vmss",
		},
		{
			"lower case segment names",
			"/subscriptions/0000/resourcegroups/RG/providers/microsoft.compute/virtualmachinescalesets/VMSS/",
			"RG", "VMSS",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rg, ss, err := cloud.ParseSubject(tt.subject)
			require.NoError(t, err)
			assert.Equal(t, tt.rg, rg)
			assert.Equal(t, tt.ss, ss)
		})
	}
}

func TestStableID(t *testing.T) {
	id := "/subscriptions/0000/resourceGroups/capture-rg/providers/Microsoft.Compute/virtualMachineScaleSets/cvuv-vmss/virtualMachines/0"
	got := cloud.StableID(id)
	assert.Regexp(t, `^cvuv-[0-9a-f]{6}$`, got)
	assert.Equal(t, got, cloud.StableID(id))
	assert.NotEqual(t, got, cloud.StableID(id[:len(id)-1]+"1"))

	// sha1("abc") = a9993e36...
	assert.Equal(t, "cvuv-a9993e", cloud.StableID("abc"))
}
