package keyvault

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/keyvault/azsecrets"
	"github.com/pkg/errors"
)

var ErrEmptySecret = errors.New("secret has no value")

type secretFetcher interface {
	GetSecret(ctx context.Context, secretName string, version string, opts *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// Shim provides convenience methods for working with KeyVault.
type Shim struct {
	sf secretFetcher
}

// NewShim constructs a Shim for a KeyVault instance, pointed to by the provided url. The azcore.TokenCredential will
// only be used during method calls, it is not verified at initialization.
func NewShim(vaultURL string, cred azcore.TokenCredential) (*Shim, error) {
	c, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not create secrets client")
	}

	return &Shim{sf: c}, nil
}

// GetSecretValue fetches the latest version of a secret and returns its value.
func (s *Shim) GetSecretValue(ctx context.Context, secretName string) (string, error) {
	sb, err := s.sf.GetSecret(ctx, secretName, "", nil)
	if err != nil {
		return "", errors.Wrapf(err, "could not get secret %s", secretName)
	}
	if sb.Value == nil || *sb.Value == "" {
		return "", errors.Wrapf(ErrEmptySecret, "secret %s", secretName)
	}
	return *sb.Value, nil
}
