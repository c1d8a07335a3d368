package cloud

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v5"
	"github.com/cpacket/appliance-registrar/reconciler"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// InterfacesAPI is the subset of armnetwork.InterfacesClient used here.
type InterfacesAPI interface {
	NewListVirtualMachineScaleSetNetworkInterfacesPager(resourceGroupName, virtualMachineScaleSetName string,
		options *armnetwork.InterfacesClientListVirtualMachineScaleSetNetworkInterfacesOptions,
	) *runtime.Pager[armnetwork.InterfacesClientListVirtualMachineScaleSetNetworkInterfacesResponse]
	Get(ctx context.Context, resourceGroupName, networkInterfaceName string,
		options *armnetwork.InterfacesClientGetOptions) (armnetwork.InterfacesClientGetResponse, error)
}

// Inventory lists the management interfaces of scale set members.
type Inventory struct {
	nics   InterfacesAPI
	logger *zap.Logger
}

func NewInventory(nics InterfacesAPI, logger *zap.Logger) *Inventory {
	return &Inventory{nics: nics, logger: logger}
}

// ListDesiredDevices returns one device per management NIC in the scale
// set. Capture NICs, which sit in a load balancer backend pool, are
// skipped, as are NICs without an address or an owning VM. An empty scale
// set is not an error.
func (i *Inventory) ListDesiredDevices(ctx context.Context, resourceGroup, scaleSet string) ([]reconciler.DesiredDevice, error) {
	logger := i.logger.With(zap.String("resource_group", resourceGroup), zap.String("scale_set", scaleSet))

	var devices []reconciler.DesiredDevice
	seen := map[string]struct{}{}
	pager := i.nics.NewListVirtualMachineScaleSetNetworkInterfacesPager(resourceGroup, scaleSet, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list network interfaces of scale set %s/%s", resourceGroup, scaleSet)
		}
		for _, nic := range page.Value {
			d, ok := desiredDevice(logger, nic)
			if !ok {
				continue
			}
			if _, dup := seen[d.StableID]; dup {
				logger.Debug("skipping second management NIC of VM", zap.String("stable_id", d.StableID))
				continue
			}
			seen[d.StableID] = struct{}{}
			logger.Info("found cVu-V NIC",
				zap.String("ip", d.PrivateIPAddress), zap.String("stable_id", d.StableID), zap.String("instance", d.CloudInstanceID))
			devices = append(devices, d)
		}
	}
	return devices, nil
}

func desiredDevice(logger *zap.Logger, nic *armnetwork.Interface) (reconciler.DesiredDevice, bool) {
	if nic == nil || nic.Properties == nil {
		return reconciler.DesiredDevice{}, false
	}
	logger = logger.With(zap.String("nic", deref(nic.ID)))

	configs := nic.Properties.IPConfigurations
	if len(configs) == 0 || configs[0] == nil || configs[0].Properties == nil {
		logger.Debug("skipping NIC without IP configuration")
		return reconciler.DesiredDevice{}, false
	}
	ipConfig := configs[0].Properties
	if len(ipConfig.LoadBalancerBackendAddressPools) > 0 {
		logger.Debug("skipping capture NIC")
		return reconciler.DesiredDevice{}, false
	}
	ip := deref(ipConfig.PrivateIPAddress)
	if ip == "" {
		logger.Info("skipping NIC without private address")
		return reconciler.DesiredDevice{}, false
	}
	if nic.Properties.VirtualMachine == nil || deref(nic.Properties.VirtualMachine.ID) == "" {
		logger.Info("skipping NIC without owning VM")
		return reconciler.DesiredDevice{}, false
	}

	vmID := *nic.Properties.VirtualMachine.ID
	return reconciler.DesiredDevice{
		PrivateIPAddress: ip,
		StableID:         StableID(vmID),
		CloudInstanceID:  lastSegment(vmID),
	}, true
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
