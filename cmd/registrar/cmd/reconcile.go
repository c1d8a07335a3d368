package cmd

import (
	"encoding/json"
	"io"
	"os"

	"github.com/cpacket/appliance-registrar/cloud"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagEventFile     = "event-file"
	flagResourceGroup = "resource-group"
	flagScaleSet      = "scale-set"
	flagOperation     = "operation"
)

var errNoEvent = errors.New("either --event-file or --resource-group and --scale-set are required")

// ReconcileCmd runs a single pass, from an Event Grid event or from a
// resource group and scale set given on the command line.
func ReconcileCmd(v *viper.Viper) *cobra.Command {
	var eventFile, resourceGroup, scaleSet, operation string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass",
		Example: "  registrar reconcile --event-file event.json\n" +
			"  registrar reconcile --resource-group capture-rg --scale-set cvuv-vmss",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ev, err := eventFromFlags(cmd, eventFile, resourceGroup, scaleSet, operation)
			if err != nil {
				return err
			}

			e, err := setup(v)
			if err != nil {
				return err
			}
			defer e.closeFn()

			h, err := newHandler(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return err
			}
			out, err := h.Handle(cmd.Context(), ev)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVarP(&eventFile, flagEventFile, "f", "", "Event Grid event as JSON, - for stdin")
	cmd.Flags().StringVarP(&resourceGroup, flagResourceGroup, "g", "", "Resource group of the scale set")
	cmd.Flags().StringVarP(&scaleSet, flagScaleSet, "s", "", "Scale set name")
	cmd.Flags().StringVar(&operation, flagOperation, cloud.OperationScaleSetWrite, "Operation name to simulate")
	cmd.MarkFlagsMutuallyExclusive(flagEventFile, flagResourceGroup)
	cmd.MarkFlagsMutuallyExclusive(flagEventFile, flagScaleSet)
	cmd.MarkFlagsRequiredTogether(flagResourceGroup, flagScaleSet)
	return cmd
}

func eventFromFlags(cmd *cobra.Command, eventFile, resourceGroup, scaleSet, operation string) (cloud.ScalingEvent, error) {
	if eventFile != "" {
		var b []byte
		var err error
		if eventFile == "-" {
			b, err = io.ReadAll(cmd.InOrStdin())
		} else {
			b, err = os.ReadFile(eventFile)
		}
		if err != nil {
			return cloud.ScalingEvent{}, errors.Wrap(err, "failed to read event")
		}
		return cloud.ParseEvent(b)
	}
	if resourceGroup == "" || scaleSet == "" {
		return cloud.ScalingEvent{}, errNoEvent
	}
	return cloud.ScalingEvent{
		ID:            "cli",
		OperationName: operation,
		ResourceGroup: resourceGroup,
		ScaleSetName:  scaleSet,
	}, nil
}
