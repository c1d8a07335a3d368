// Package credentials resolves the basic-auth pair the registrar presents to
// the controller and pushes into appliances.
package credentials

import (
	"context"

	"github.com/cpacket/appliance-registrar/configuration"
	"github.com/pkg/errors"
)

// BasicAuth is a username/password pair.
type BasicAuth struct {
	Username string
	Password string
}

// Provider returns the appliance service credentials. Implementations may do
// network I/O, so callers resolve once per pass.
type Provider interface {
	Credentials(ctx context.Context) (BasicAuth, error)
}

// Static always returns the same pair.
type Static BasicAuth

func (s Static) Credentials(context.Context) (BasicAuth, error) {
	return BasicAuth(s), nil
}

// Env serves the password supplied through configuration (environment or flag).
type Env struct {
	Username string
	Password string
}

func (e *Env) Credentials(context.Context) (BasicAuth, error) {
	if e.Password == "" {
		return BasicAuth{}, configuration.ErrPasswordNotDefined
	}
	return BasicAuth{Username: e.Username, Password: e.Password}, nil
}

type secretGetter interface {
	GetSecretValue(ctx context.Context, secretName string) (string, error)
}

// KeyVault reads the password from a Key Vault secret on every call.
type KeyVault struct {
	Username   string
	SecretName string
	Secrets    secretGetter
}

func (k *KeyVault) Credentials(ctx context.Context) (BasicAuth, error) {
	password, err := k.Secrets.GetSecretValue(ctx, k.SecretName)
	if err != nil {
		return BasicAuth{}, errors.Wrap(err, "failed to read appliance password from key vault")
	}
	return BasicAuth{Username: k.Username, Password: password}, nil
}
