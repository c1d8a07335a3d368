package cclear_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cpacket/appliance-registrar/apiclient"
	"github.com/cpacket/appliance-registrar/credentials"
	"go.uber.org/zap"
)

var testAuth = credentials.BasicAuth{Username: "cpacket", Password: "secret"}

type request struct {
	Method string
	Path   string
	Body   map[string]any
}

type route struct {
	status int
	body   string
}

// fakeController serves canned responses per "METHOD path" and records
// every request it receives.
type fakeController struct {
	t      *testing.T
	srv    *httptest.Server
	routes map[string]route

	mu       sync.Mutex
	requests []request
}

func newFakeController(t *testing.T, routes map[string]route) *fakeController {
	t.Helper()
	f := &fakeController{t: t, routes: routes}
	f.srv = httptest.NewTLSServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeController) serve(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != testAuth.Username || pass != testAuth.Password {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"name":"Unauthorized","message":"bad credentials"}`))
		return
	}

	req := request{Method: r.Method, Path: r.URL.Path}
	if b, _ := io.ReadAll(r.Body); len(strings.TrimSpace(string(b))) > 0 {
		if err := json.Unmarshal(b, &req.Body); err != nil {
			f.t.Errorf("request body is not JSON: %v", err)
		}
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	rt, ok := f.routes[r.Method+" "+r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"name":"NotFound","message":"no route"}`))
		return
	}
	if rt.status != 0 {
		w.WriteHeader(rt.status)
	}
	_, _ = w.Write([]byte(rt.body))
}

// host is the address the code under test uses as a controller or
// appliance IP.
func (f *fakeController) host() string {
	return f.srv.Listener.Addr().String()
}

func (f *fakeController) recorded() []request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]request(nil), f.requests...)
}

func newClient() *apiclient.Client {
	return apiclient.New(zap.NewNop())
}
