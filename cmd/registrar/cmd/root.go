package cmd

import (
	"context"
	"time"

	"github.com/cpacket/appliance-registrar/apiclient"
	"github.com/cpacket/appliance-registrar/cclear"
	"github.com/cpacket/appliance-registrar/cloud"
	"github.com/cpacket/appliance-registrar/configuration"
	"github.com/cpacket/appliance-registrar/credentials"
	"github.com/cpacket/appliance-registrar/handler"
	"github.com/cpacket/appliance-registrar/keyvault"
	"github.com/cpacket/appliance-registrar/lock"
	"github.com/cpacket/appliance-registrar/logger"
	"github.com/cpacket/appliance-registrar/reconciler"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// NewRootCmd returns the registrar command tree.
func NewRootCmd(version string) *cobra.Command {
	v := configuration.NewViper()

	rootCmd := &cobra.Command{
		Use:          "registrar",
		Short:        "Keeps a cClear-V device registry in sync with a cVu-V scale set",
		SilenceUsage: true,
	}
	addConfigFlags(rootCmd.PersistentFlags())
	cobra.CheckErr(v.BindPFlags(rootCmd.PersistentFlags()))

	rootCmd.AddCommand(ServeCmd(v))
	rootCmd.AddCommand(ReconcileCmd(v))
	rootCmd.AddCommand(ButtonCmd())
	rootCmd.AddCommand(VersionCmd(version))
	return rootCmd
}

func addConfigFlags(fs *pflag.FlagSet) {
	fs.String(configuration.KeyProfile, "capture", "Controller API profile, capture or register")
	fs.String(configuration.KeyTagKey, "cpacket:ApplianceType", "Tag key identifying the controller VM")
	fs.String(configuration.KeyTagValue, "cClear-V", "Tag value identifying the controller VM")
	fs.String(configuration.KeyUsername, "cpacket", "Service account used against the controller and appliances")
	fs.String(configuration.KeyPasswordSource, configuration.PasswordSourceEnv,
		"Where the service password comes from, env ("+configuration.PasswordEnvVar+") or keyvault")
	fs.String(configuration.KeyKeyVaultName, "cpacket", "Key Vault holding the service password")
	fs.String(configuration.KeyKeyVaultSecret, "cpacket", "Secret name of the service password")
	fs.String(configuration.KeySubscriptionID, "", "Subscription to use, discovered when empty")
	fs.String(configuration.KeyClientID, "", "Client ID of a user-assigned managed identity")
	fs.Duration(configuration.KeyRequestTimeout, apiclient.DefaultTimeout, "Timeout of every cloud and appliance call")
	fs.Duration(configuration.KeyControllerLockTimeout, 5*time.Minute, "How long a pass waits for another pass on the same controller")
	fs.String(configuration.KeyLogLevel, "info", "Log level")
	fs.String(configuration.KeyLogFile, "", "Optional rotated log file")
}

// env is what every pass-running command needs.
type env struct {
	cfg     *configuration.Config
	logger  *zap.Logger
	closeFn func()
}

func setup(v *viper.Viper) (*env, error) {
	cfg, err := configuration.Load(v)
	if err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	l, closeFn, err := logger.New(&cfg.Log)
	if err != nil {
		closeFn()
		return nil, errors.Wrap(err, "failed to create logger")
	}
	return &env{cfg: cfg, logger: l, closeFn: closeFn}, nil
}

// newHandler wires the cloud, secret and controller clients into a
// Handler.
func newHandler(ctx context.Context, cfg *configuration.Config, l *zap.Logger) (*handler.Handler, error) {
	profile, err := cclear.ProfileByName(cfg.Profile)
	if err != nil {
		return nil, err
	}

	cred, err := cloud.NewCredential(cfg.ClientID)
	if err != nil {
		return nil, err
	}
	clients, err := cloud.NewClients(ctx, cred, cfg.SubscriptionID, cfg.RequestTimeout, l)
	if err != nil {
		return nil, err
	}

	var provider credentials.Provider
	switch cfg.PasswordSource {
	case configuration.PasswordSourceKeyVault:
		shim, err := keyvault.NewShim(cfg.KeyVaultURL(), cred)
		if err != nil {
			return nil, err
		}
		provider = &credentials.KeyVault{Username: cfg.Username, SecretName: cfg.KeyVaultSecret, Secrets: shim}
	default:
		provider = &credentials.Env{Username: cfg.Username, Password: cfg.Password}
	}

	client := apiclient.New(l, apiclient.Timeout(cfg.RequestTimeout))
	l.Info("registrar configured",
		zap.String("profile", profile.Name),
		zap.String("password_source", cfg.PasswordSource),
		zap.String("controller_tag", cfg.ControllerTagKey+"="+cfg.ControllerTagValue))

	return handler.New(handler.Deps{
		Inventory:   cloud.NewInventory(clients.Interfaces, l),
		Locator:     cloud.NewLocator(clients.Resources, clients.VirtualMachines, clients.Interfaces, cfg.ControllerTagKey, cfg.ControllerTagValue, l),
		Credentials: provider,
		Client:      client,
		Prober:      reconciler.HTTPSProber{Client: client},
		Profile:     profile,
		Locks:       lock.NewKeyed(),
		LockTimeout: cfg.ControllerLockTimeout,
	}, l), nil
}
