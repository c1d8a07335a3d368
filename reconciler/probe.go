package reconciler

import (
	"context"
	"net/url"
)

// URLProber is satisfied by *apiclient.Client.
type URLProber interface {
	Probe(ctx context.Context, url string) error
}

// HTTPSProber probes an appliance with an unauthenticated GET of its
// landing page.
type HTTPSProber struct {
	Client URLProber
}

func (p HTTPSProber) Probe(ctx context.Context, ip string) error {
	u := url.URL{Scheme: "https", Host: ip, Path: "/"}
	return p.Client.Probe(ctx, u.String())
}
