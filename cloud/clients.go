package cloud

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v5"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// NewCredential returns the managed identity credential of the host. An
// empty clientID selects the system-assigned identity.
func NewCredential(clientID string) (azcore.TokenCredential, error) {
	opts := &azidentity.ManagedIdentityCredentialOptions{}
	if clientID != "" {
		opts.ID = azidentity.ClientID(clientID)
	}
	cred, err := azidentity.NewManagedIdentityCredential(opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create managed identity credential")
	}
	return cred, nil
}

// ClientOptions disables SDK retries and bounds every try by timeout. A
// failed control plane call is final for the pass.
func ClientOptions(timeout time.Duration) *arm.ClientOptions {
	return &arm.ClientOptions{
		ClientOptions: policy.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries: -1,
				TryTimeout: timeout,
			},
		},
	}
}

// Clients bundles the ARM clients of one subscription.
type Clients struct {
	SubscriptionID  string
	Interfaces      *armnetwork.InterfacesClient
	VirtualMachines *armcompute.VirtualMachinesClient
	Resources       *armresources.Client
}

// NewClients creates the ARM clients. When subscriptionID is empty it is
// discovered, and the identity must see exactly one subscription.
func NewClients(ctx context.Context, cred azcore.TokenCredential, subscriptionID string, timeout time.Duration, logger *zap.Logger) (*Clients, error) {
	opts := ClientOptions(timeout)
	if subscriptionID == "" {
		subs, err := armsubscriptions.NewClient(cred, opts)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create subscriptions client")
		}
		if subscriptionID, err = ResolveSubscription(ctx, subs, logger); err != nil {
			return nil, err
		}
	}
	logger.Info("using subscription", zap.String("subscription_id", subscriptionID))

	nics, err := armnetwork.NewInterfacesClient(subscriptionID, cred, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create network interfaces client")
	}
	vms, err := armcompute.NewVirtualMachinesClient(subscriptionID, cred, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create virtual machines client")
	}
	resources, err := armresources.NewClient(subscriptionID, cred, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create resources client")
	}
	return &Clients{
		SubscriptionID:  subscriptionID,
		Interfaces:      nics,
		VirtualMachines: vms,
		Resources:       resources,
	}, nil
}
