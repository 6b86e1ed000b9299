package lifecycle

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/awm/vaire-cfg/internal/cmdfmt"
	"github.com/awm/vaire-cfg/internal/config"
	"github.com/awm/vaire-cfg/pkg/manifest"
)

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [<service> ...]",
		Short: "Show which services are deployed and running",
		Long: `Show the deployment and runtime state of one or more services. A service is
deployed when recorded in the state file and running when all of its declared
start units are active.`,
		Args: cobra.ArbitraryArgs,
		RunE: runStatusCmd,
	}
}

func runStatusCmd(cmd *cobra.Command, args []string) error {
	fsys, m, store, err := loadManifest()
	if err != nil {
		return err
	}
	services, err := m.Select(args)
	if err != nil {
		return err
	}
	ctrl, cleanup, err := newController(cmd.Context(), fsys, store)
	if err != nil {
		return err
	}
	defer cleanup()

	state, err := manifest.LoadState(fsys, viper.GetString(config.StateKey))
	if err != nil {
		return err
	}

	tbl := cmdfmt.NewPrintomatic(
		[]string{"service", "deployed", "running", "message"},
		[]string{"service", "deployed", "running", "message"})
	var errs int
	for _, svc := range services {
		status := ctrl.Status(cmd.Context(), svc, state.Deployed[svc.Name])
		msg := ""
		if status.Err != nil {
			errs++
			msg = cmdfmt.Wrap(status.Err.Error(), wrapWidth)
		}
		tbl.AddItem(status.Service, status.Deployed, status.Running, msg)
	}
	tbl.PrintRemaining()

	return failureError(errs, len(services),
		fmt.Errorf("unable to determine status for %d of %d services", errs, len(services)))
}
