package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/cpacket/appliance-registrar/configuration"
	"github.com/cpacket/appliance-registrar/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ServeCmd runs the HTTP server the Functions host or an Event Grid
// webhook subscription delivers events to.
func ServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve scaling events over HTTP",
		Long: "Serve scaling events as an Azure Functions custom handler and as an Event Grid webhook. " +
			"The port defaults to " + configuration.CustomHandlerPortEnvVar + ".",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(v)
			if err != nil {
				return err
			}
			defer e.closeFn()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if wait := server.LockWait(e.cfg.ControllerLockTimeout); wait != e.cfg.ControllerLockTimeout {
				e.logger.Info("capping controller lock wait for event delivery",
					zap.Duration("configured", e.cfg.ControllerLockTimeout), zap.Duration("wait", wait))
				e.cfg.ControllerLockTimeout = wait
			}

			h, err := newHandler(ctx, e.cfg, e.logger)
			if err != nil {
				e.logger.Error("failed to start", zap.Error(err))
				return err
			}
			return server.New(h, e.cfg.Server.FunctionName, e.logger).ListenAndServe(ctx, e.cfg.Server.Port)
		},
	}
	cmd.Flags().Int(configuration.KeyServerPort, 8080, "Listen port")
	cmd.Flags().String(configuration.KeyFunctionName, "cpacketappliances", "Function name the Functions host invokes")
	cobra.CheckErr(v.BindPFlags(cmd.Flags()))
	return cmd
}
