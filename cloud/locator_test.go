package cloud_test

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v5"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/cpacket/appliance-registrar/cloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	tagKey   = "cpacket:ApplianceType"
	tagValue = "cClear-V"
)

// resourcesFake answers like ARM: a type filter keeps matching resources
// with their tags, a tag filter keeps matching resources without them.
type resourcesFake struct {
	resources []*armresources.GenericResourceExpanded
	filter    string
}

var tagFilter = regexp.MustCompile(`^tagName eq '([^']*)' and tagValue eq '([^']*)'$`)

func (f *resourcesFake) NewListByResourceGroupPager(_ string,
	opts *armresources.ClientListByResourceGroupOptions,
) *runtime.Pager[armresources.ClientListByResourceGroupResponse] {
	f.filter = ""
	if opts != nil && opts.Filter != nil {
		f.filter = *opts.Filter
	}

	var listed []*armresources.GenericResourceExpanded
	for _, r := range f.resources {
		switch {
		case f.filter == "":
			listed = append(listed, r)
		case strings.HasPrefix(f.filter, "resourceType eq "):
			want := strings.Trim(strings.TrimPrefix(f.filter, "resourceType eq "), "'")
			if r.Type != nil && strings.EqualFold(*r.Type, want) {
				listed = append(listed, r)
			}
		case tagFilter.MatchString(f.filter):
			m := tagFilter.FindStringSubmatch(f.filter)
			if v, ok := r.Tags[m[1]]; ok && v != nil && *v == m[2] {
				stripped := *r
				stripped.Tags = nil
				listed = append(listed, &stripped)
			}
		}
	}
	return pagerOf(nil, armresources.ClientListByResourceGroupResponse{
		ResourceListResult: armresources.ResourceListResult{Value: listed},
	})
}

type vmsFake struct {
	vms map[string]armcompute.VirtualMachine
}

func (f *vmsFake) Get(_ context.Context, _, name string, _ *armcompute.VirtualMachinesClientGetOptions) (armcompute.VirtualMachinesClientGetResponse, error) {
	return armcompute.VirtualMachinesClientGetResponse{VirtualMachine: f.vms[name]}, nil
}

func taggedVM(name string) *armresources.GenericResourceExpanded {
	return &armresources.GenericResourceExpanded{
		Name: to.Ptr(name),
		Type: to.Ptr("Microsoft.Compute/virtualMachines"),
		Tags: map[string]*string{tagKey: to.Ptr(tagValue)},
	}
}

func vmWithNICs(nics ...*armcompute.NetworkInterfaceReference) armcompute.VirtualMachine {
	return armcompute.VirtualMachine{
		Properties: &armcompute.VirtualMachineProperties{
			NetworkProfile: &armcompute.NetworkProfile{NetworkInterfaces: nics},
		},
	}
}

func nicRef(name string, primary bool) *armcompute.NetworkInterfaceReference {
	return &armcompute.NetworkInterfaceReference{
		ID:         to.Ptr("/subscriptions/0000/resourceGroups/capture-rg/providers/Microsoft.Network/networkInterfaces/" + name),
		Properties: &armcompute.NetworkInterfaceReferenceProperties{Primary: to.Ptr(primary)},
	}
}

func nicWithIP(ip string) armnetwork.Interface {
	return armnetwork.Interface{
		Properties: &armnetwork.InterfacePropertiesFormat{
			IPConfigurations: []*armnetwork.InterfaceIPConfiguration{{
				Properties: &armnetwork.InterfaceIPConfigurationPropertiesFormat{PrivateIPAddress: to.Ptr(ip)},
			}},
		},
	}
}

func TestResolveController(t *testing.T) {
	notAVM := taggedVM("cclear-disk")
	notAVM.Type = to.Ptr("Microsoft.Compute/disks")
	otherTag := taggedVM("cvuv-0")
	otherTag.Tags = map[string]*string{tagKey: to.Ptr("cVu-V")}

	resources := &resourcesFake{resources: []*armresources.GenericResourceExpanded{taggedVM("cclear"), notAVM, otherTag}}
	vms := &vmsFake{vms: map[string]armcompute.VirtualMachine{
		"cclear": vmWithNICs(nicRef("cclear-secondary", false), nicRef("cclear-primary", true)),
	}}
	nics := &interfacesFake{nics: map[string]armnetwork.Interface{
		"cclear-primary":   nicWithIP("10.0.0.4"),
		"cclear-secondary": nicWithIP("10.2.0.4"),
	}}

	ip, err := cloud.NewLocator(resources, vms, nics, tagKey, tagValue, zap.NewNop()).ResolveController(context.Background(), "capture-rg")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.4", ip)
	assert.Equal(t, "resourceType eq 'Microsoft.Compute/virtualMachines'", resources.filter)
}

func TestResolveControllerMatchesTagsOnListedVMs(t *testing.T) {
	untagged := taggedVM("cvuv-1")
	untagged.Tags = nil
	renamedKey := taggedVM("cclear")
	renamedKey.Tags = map[string]*string{"CPACKET:APPLIANCETYPE": to.Ptr(tagValue)}
	disk := taggedVM("cclear-osdisk")
	disk.Type = to.Ptr("Microsoft.Compute/disks")

	resources := &resourcesFake{resources: []*armresources.GenericResourceExpanded{untagged, renamedKey, disk}}
	vms := &vmsFake{vms: map[string]armcompute.VirtualMachine{
		"cclear": vmWithNICs(nicRef("cclear-primary", true)),
	}}
	nics := &interfacesFake{nics: map[string]armnetwork.Interface{"cclear-primary": nicWithIP("10.0.0.4")}}

	ip, err := cloud.NewLocator(resources, vms, nics, tagKey, tagValue, zap.NewNop()).ResolveController(context.Background(), "capture-rg")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.4", ip)
	assert.NotContains(t, resources.filter, "tagName")
}

func TestResolveControllerFallsBackToFirstNIC(t *testing.T) {
	resources := &resourcesFake{resources: []*armresources.GenericResourceExpanded{taggedVM("cclear")}}
	vms := &vmsFake{vms: map[string]armcompute.VirtualMachine{
		"cclear": vmWithNICs(&armcompute.NetworkInterfaceReference{ID: to.Ptr("/x/networkInterfaces/only")}),
	}}
	nics := &interfacesFake{nics: map[string]armnetwork.Interface{"only": nicWithIP("10.0.0.7")}}

	ip, err := cloud.NewLocator(resources, vms, nics, tagKey, tagValue, zap.NewNop()).ResolveController(context.Background(), "capture-rg")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", ip)
}

func TestResolveControllerErrors(t *testing.T) {
	tests := []struct {
		name      string
		resources []*armresources.GenericResourceExpanded
		vm        armcompute.VirtualMachine
		nic       armnetwork.Interface
		want      error
	}{
		{
			name: "no controller",
			want: cloud.ErrControllerNotFound,
		},
		{
			name:      "two controllers",
			resources: []*armresources.GenericResourceExpanded{taggedVM("cclear"), taggedVM("cclear-2")},
			want:      cloud.ErrControllerAmbiguous,
		},
		{
			name:      "no network profile",
			resources: []*armresources.GenericResourceExpanded{taggedVM("cclear")},
			vm:        armcompute.VirtualMachine{},
			want:      cloud.ErrControllerAddress,
		},
		{
			name:      "no ip configuration",
			resources: []*armresources.GenericResourceExpanded{taggedVM("cclear")},
			vm:        vmWithNICs(nicRef("nic", true)),
			nic:       armnetwork.Interface{Properties: &armnetwork.InterfacePropertiesFormat{}},
			want:      cloud.ErrControllerAddress,
		},
		{
			name:      "no private address",
			resources: []*armresources.GenericResourceExpanded{taggedVM("cclear")},
			vm:        vmWithNICs(nicRef("nic", true)),
			nic:       nicWithIP(""),
			want:      cloud.ErrControllerAddress,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := cloud.NewLocator(
				&resourcesFake{resources: tt.resources},
				&vmsFake{vms: map[string]armcompute.VirtualMachine{"cclear": tt.vm}},
				&interfacesFake{nics: map[string]armnetwork.Interface{"nic": tt.nic}},
				tagKey, tagValue, zap.NewNop())
			ip, err := l.ResolveController(context.Background(), "capture-rg")
			require.ErrorIs(t, err, tt.want)
			assert.Empty(t, ip)
		})
	}
}
