package configuration

import "github.com/pkg/errors"

// Application settings provided by the Azure Functions host or by the
// deployment template of the original function app.
const (
	PasswordEnvVar                    = "APPLIANCE_HTTP_BASIC_AUTH_PASSWORD"
	CustomHandlerPortEnvVar           = "FUNCTIONS_CUSTOMHANDLER_PORT"
	AppInsightsConnectionStringEnvVar = "APPLICATIONINSIGHTS_CONNECTION_STRING"
	SubscriptionIDEnvVar              = "AZURE_SUBSCRIPTION_ID"
	ClientIDEnvVar                    = "AZURE_CLIENT_ID"
)

// ErrPasswordNotDefined indicates the appliance password is unset.
var ErrPasswordNotDefined = errors.Errorf("must set %s environment variable", PasswordEnvVar)
