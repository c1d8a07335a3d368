package cloud

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const virtualMachineType = "Microsoft.Compute/virtualMachines"

var (
	// ErrControllerNotFound means no VM carries the controller tag. The
	// fleet may simply not have a controller yet.
	ErrControllerNotFound = errors.New("no controller VM found")
	// ErrControllerAmbiguous means more than one VM carries the tag.
	ErrControllerAmbiguous = errors.New("multiple controller VMs found")
	// ErrControllerAddress means the controller VM has no usable private address.
	ErrControllerAddress = errors.New("controller VM has no private address")
)

// ResourcesAPI is the subset of armresources.Client used here.
type ResourcesAPI interface {
	NewListByResourceGroupPager(resourceGroupName string,
		options *armresources.ClientListByResourceGroupOptions) *runtime.Pager[armresources.ClientListByResourceGroupResponse]
}

// VirtualMachinesAPI is the subset of armcompute.VirtualMachinesClient used here.
type VirtualMachinesAPI interface {
	Get(ctx context.Context, resourceGroupName, vmName string,
		options *armcompute.VirtualMachinesClientGetOptions) (armcompute.VirtualMachinesClientGetResponse, error)
}

// Locator finds the controller VM of a resource group by tag.
type Locator struct {
	resources ResourcesAPI
	vms       VirtualMachinesAPI
	nics      InterfacesAPI
	tagKey    string
	tagValue  string
	logger    *zap.Logger
}

func NewLocator(resources ResourcesAPI, vms VirtualMachinesAPI, nics InterfacesAPI, tagKey, tagValue string, logger *zap.Logger) *Locator {
	return &Locator{
		resources: resources,
		vms:       vms,
		nics:      nics,
		tagKey:    tagKey,
		tagValue:  tagValue,
		logger:    logger,
	}
}

// ResolveController returns the private address of the single VM tagged
// tagKey=tagValue. Zero or several matches are errors, the caller must not
// pick one.
func (l *Locator) ResolveController(ctx context.Context, resourceGroup string) (string, error) {
	logger := l.logger.With(zap.String("resource_group", resourceGroup), zap.String("tag", l.tagKey+"="+l.tagValue))

	vms, err := l.taggedVMs(ctx, resourceGroup)
	if err != nil {
		return "", err
	}
	switch len(vms) {
	case 0:
		logger.Info("did not find controller VM")
		return "", errors.Wrapf(ErrControllerNotFound, "%s=%s in %s", l.tagKey, l.tagValue, resourceGroup)
	case 1:
	default:
		logger.Error("found multiple controller VMs", zap.Strings("vms", vms))
		return "", errors.Wrapf(ErrControllerAmbiguous, "%s", strings.Join(vms, ","))
	}

	vmName := vms[0]
	logger = logger.With(zap.String("vm", vmName))
	logger.Info("found controller VM")

	vm, err := l.vms.Get(ctx, resourceGroup, vmName, nil)
	if err != nil {
		return "", errors.Wrapf(err, "failed to get VM %s", vmName)
	}
	nicID := primaryInterfaceID(vm.VirtualMachine)
	if nicID == "" {
		logger.Error("controller VM has no network interface")
		return "", errors.Wrapf(ErrControllerAddress, "%s: no network interface", vmName)
	}

	nicName := lastSegment(nicID)
	nic, err := l.nics.Get(ctx, resourceGroup, nicName, nil)
	if err != nil {
		return "", errors.Wrapf(err, "failed to get network interface %s", nicName)
	}
	if nic.Properties == nil || len(nic.Properties.IPConfigurations) == 0 || nic.Properties.IPConfigurations[0] == nil {
		logger.Error("failed to get IP configuration", zap.String("nic", nicName))
		return "", errors.Wrapf(ErrControllerAddress, "%s: no IP configuration", nicName)
	}
	ipConfig := nic.Properties.IPConfigurations[0]
	if ipConfig.Properties == nil || deref(ipConfig.Properties.PrivateIPAddress) == "" {
		logger.Error("failed to get IP address", zap.String("nic", nicName))
		return "", errors.Wrapf(ErrControllerAddress, "%s: no private address", nicName)
	}

	ip := *ipConfig.Properties.PrivateIPAddress
	logger.Info("resolved controller address", zap.String("ip", ip))
	return ip, nil
}

// taggedVMs returns the names of the VMs carrying the controller tag. ARM
// strips tags from results filtered by tag, so the listing is filtered by
// type and the tag is matched here.
func (l *Locator) taggedVMs(ctx context.Context, resourceGroup string) ([]string, error) {
	opts := &armresources.ClientListByResourceGroupOptions{
		Filter: to.Ptr(fmt.Sprintf("resourceType eq '%s'", virtualMachineType)),
	}

	var names []string
	pager := l.resources.NewListByResourceGroupPager(resourceGroup, opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list resources in %s", resourceGroup)
		}
		for _, r := range page.Value {
			if r == nil || !strings.EqualFold(deref(r.Type), virtualMachineType) {
				continue
			}
			if !hasTag(r.Tags, l.tagKey, l.tagValue) {
				continue
			}
			names = append(names, deref(r.Name))
		}
	}
	return names, nil
}

// hasTag matches the tag name case-insensitively, as ARM does, and the
// value exactly.
func hasTag(tags map[string]*string, key, value string) bool {
	for k, v := range tags {
		if strings.EqualFold(k, key) && deref(v) == value {
			return true
		}
	}
	return false
}

// primaryInterfaceID prefers the NIC flagged primary and falls back to the
// first one.
func primaryInterfaceID(vm armcompute.VirtualMachine) string {
	if vm.Properties == nil || vm.Properties.NetworkProfile == nil {
		return ""
	}
	refs := vm.Properties.NetworkProfile.NetworkInterfaces
	for _, ref := range refs {
		if ref != nil && ref.Properties != nil && deref(ref.Properties.Primary) {
			return deref(ref.ID)
		}
	}
	for _, ref := range refs {
		if ref != nil && deref(ref.ID) != "" {
			return *ref.ID
		}
	}
	return ""
}
