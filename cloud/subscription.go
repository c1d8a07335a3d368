package cloud

import (
	"context"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrNoSubscription        = errors.New("no subscription visible to the identity")
	ErrAmbiguousSubscription = errors.New("more than one subscription visible to the identity")
)

// SubscriptionsAPI is the subset of armsubscriptions.Client used here.
type SubscriptionsAPI interface {
	NewListPager(options *armsubscriptions.ClientListOptions) *runtime.Pager[armsubscriptions.ClientListResponse]
}

// ResolveSubscription returns the only subscription the identity can see.
func ResolveSubscription(ctx context.Context, subs SubscriptionsAPI, logger *zap.Logger) (string, error) {
	var ids, fullIDs []string
	pager := subs.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return "", errors.Wrap(err, "failed to list subscriptions")
		}
		for _, s := range page.Value {
			if s == nil || deref(s.SubscriptionID) == "" {
				continue
			}
			ids = append(ids, *s.SubscriptionID)
			fullIDs = append(fullIDs, deref(s.ID))
		}
	}

	switch len(ids) {
	case 0:
		logger.Error("failed to get any subscriptions")
		return "", ErrNoSubscription
	case 1:
		return ids[0], nil
	default:
		logger.Error("multiple subscriptions obtained when only one was expected", zap.Strings("subscriptions", fullIDs))
		return "", errors.Wrapf(ErrAmbiguousSubscription, "%s", strings.Join(ids, ","))
	}
}
