package configuration

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const envPrefix = "REGISTRAR"

// Keys understood by Load. Flags registered by the CLI use the same names.
const (
	KeyProfile               = "profile"
	KeyTagKey                = "controller-tag-key"
	KeyTagValue              = "controller-tag-value"
	KeyUsername              = "username"
	KeyPassword              = "password"
	KeyPasswordSource        = "password-source"
	KeyKeyVaultName          = "keyvault-name"
	KeyKeyVaultSecret        = "keyvault-secret"
	KeySubscriptionID        = "subscription-id"
	KeyClientID              = "client-id"
	KeyRequestTimeout        = "request-timeout"
	KeyControllerLockTimeout = "controller-lock-timeout"
	KeyLogLevel              = "log-level"
	KeyLogFile               = "log-file"
	KeyLogFileMaxSize        = "log-file-max-size"
	KeyLogFileMaxBackups     = "log-file-max-backups"
	KeyAppInsightsConnString = "appinsights-connection-string"
	KeyAppInsightsIKey       = "appinsights-ikey"
	KeyServerPort            = "port"
	KeyFunctionName          = "function-name"
)

const (
	PasswordSourceEnv      = "env"
	PasswordSourceKeyVault = "keyvault"
)

const (
	defaultProfile            = "capture"
	defaultTagKey             = "cpacket:ApplianceType"
	defaultTagValue           = "cClear-V"
	defaultUsername           = "cpacket"
	defaultKeyVaultName       = "cpacket"
	defaultKeyVaultSecret     = "cpacket"
	defaultRequestTimeout     = 10 * time.Second
	defaultControllerLockWait = 5 * time.Minute
	defaultLogLevel           = "info"
	defaultLogFileMaxSize     = 10 // MB
	defaultLogFileMaxBackups  = 10
	defaultServerPort         = 8080
	defaultFunctionName       = "cpacketappliances"
)

var (
	ErrUnknownPasswordSource = errors.New("unknown password source")
	ErrMissingKeyVaultName   = errors.New("keyvault password source requires a vault name")
	ErrInvalidTimeout        = errors.New("request timeout must be positive")
)

// Config is the complete runtime configuration of the registrar.
type Config struct {
	// Profile selects the appliance API variant, see cclear.ProfileByName.
	Profile string
	// ControllerTagKey and ControllerTagValue identify the cClear-V VM.
	ControllerTagKey   string
	ControllerTagValue string
	Username           string
	// Password is only consulted when PasswordSource is env.
	Password       string
	PasswordSource string
	KeyVaultName   string
	KeyVaultSecret string
	// SubscriptionID skips subscription discovery when set.
	SubscriptionID string
	// ClientID selects a user-assigned managed identity.
	ClientID              string
	RequestTimeout        time.Duration
	ControllerLockTimeout time.Duration
	Log                   LogConfig
	Server                ServerConfig
}

type LogConfig struct {
	Level                 string
	File                  string
	FileMaxSize           int
	FileMaxBackups        int
	AppInsightsConnString string
	AppInsightsIKey       string
}

type ServerConfig struct {
	Port         int
	FunctionName string
}

// NewViper returns a viper instance with defaults and env bindings applied.
// Env vars are REGISTRAR_<KEY> with dashes replaced by underscores; the Azure
// Functions application settings are bound under their well-known names.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyProfile, defaultProfile)
	v.SetDefault(KeyTagKey, defaultTagKey)
	v.SetDefault(KeyTagValue, defaultTagValue)
	v.SetDefault(KeyUsername, defaultUsername)
	v.SetDefault(KeyPasswordSource, PasswordSourceEnv)
	v.SetDefault(KeyKeyVaultName, defaultKeyVaultName)
	v.SetDefault(KeyKeyVaultSecret, defaultKeyVaultSecret)
	v.SetDefault(KeyRequestTimeout, defaultRequestTimeout)
	v.SetDefault(KeyControllerLockTimeout, defaultControllerLockWait)
	v.SetDefault(KeyLogLevel, defaultLogLevel)
	v.SetDefault(KeyLogFileMaxSize, defaultLogFileMaxSize)
	v.SetDefault(KeyLogFileMaxBackups, defaultLogFileMaxBackups)
	v.SetDefault(KeyServerPort, defaultServerPort)
	v.SetDefault(KeyFunctionName, defaultFunctionName)

	_ = v.BindEnv(KeyPassword, envPrefix+"_PASSWORD", PasswordEnvVar)
	_ = v.BindEnv(KeySubscriptionID, envPrefix+"_SUBSCRIPTION_ID", SubscriptionIDEnvVar)
	_ = v.BindEnv(KeyClientID, envPrefix+"_CLIENT_ID", ClientIDEnvVar)
	_ = v.BindEnv(KeyAppInsightsConnString, envPrefix+"_APPINSIGHTS_CONNECTION_STRING", AppInsightsConnectionStringEnvVar)
	_ = v.BindEnv(KeyServerPort, envPrefix+"_PORT", CustomHandlerPortEnvVar)
	return v
}

// Load reads a Config out of v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Profile:               v.GetString(KeyProfile),
		ControllerTagKey:      v.GetString(KeyTagKey),
		ControllerTagValue:    v.GetString(KeyTagValue),
		Username:              v.GetString(KeyUsername),
		Password:              v.GetString(KeyPassword),
		PasswordSource:        strings.ToLower(v.GetString(KeyPasswordSource)),
		KeyVaultName:          v.GetString(KeyKeyVaultName),
		KeyVaultSecret:        v.GetString(KeyKeyVaultSecret),
		SubscriptionID:        v.GetString(KeySubscriptionID),
		ClientID:              v.GetString(KeyClientID),
		RequestTimeout:        v.GetDuration(KeyRequestTimeout),
		ControllerLockTimeout: v.GetDuration(KeyControllerLockTimeout),
		Log: LogConfig{
			Level:                 v.GetString(KeyLogLevel),
			File:                  v.GetString(KeyLogFile),
			FileMaxSize:           v.GetInt(KeyLogFileMaxSize),
			FileMaxBackups:        v.GetInt(KeyLogFileMaxBackups),
			AppInsightsConnString: v.GetString(KeyAppInsightsConnString),
			AppInsightsIKey:       v.GetString(KeyAppInsightsIKey),
		},
		Server: ServerConfig{
			Port:         v.GetInt(KeyServerPort),
			FunctionName: v.GetString(KeyFunctionName),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields that have no safe fallback.
func (c *Config) Validate() error {
	switch c.PasswordSource {
	case PasswordSourceEnv:
	case PasswordSourceKeyVault:
		if c.KeyVaultName == "" {
			return ErrMissingKeyVaultName
		}
	default:
		return errors.Wrapf(ErrUnknownPasswordSource, "%q", c.PasswordSource)
	}
	if c.RequestTimeout <= 0 {
		return errors.Wrapf(ErrInvalidTimeout, "got %s", c.RequestTimeout)
	}
	return nil
}

// KeyVaultURL is the vault endpoint for KeyVaultName.
func (c *Config) KeyVaultURL() string {
	return "https://" + c.KeyVaultName + ".vault.azure.net"
}
