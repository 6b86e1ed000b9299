package lifecycle

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/awm/vaire-cfg/internal/cmdfmt"
	"github.com/awm/vaire-cfg/internal/config"
	"github.com/awm/vaire-cfg/pkg/crontab"
	"github.com/awm/vaire-cfg/pkg/lifecycle"
	"github.com/awm/vaire-cfg/pkg/manifest"
)

func NewDeployCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deploy [<service> ...]",
		Short: "Render secrets, install quadlets, and reload the service manager",
		Long: `Deploy one or more services from the manifest. For each service this renders
its secret file templates, installs its quadlet unit files into the managed
unit directory (unchanged files are left untouched), and reloads the service
manager's unit definitions. Successfully deployed services are recorded in
the state file and their crontab fragments are installed.

Without arguments all services in the manifest are deployed.`,
		Args: cobra.ArbitraryArgs,
		RunE: runDeployCmd,
	}
}

func runDeployCmd(cmd *cobra.Command, args []string) error {
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

	statePath := viper.GetString(config.StateKey)
	state, err := manifest.LoadState(fsys, statePath)
	if err != nil {
		return err
	}

	results := make([]lifecycle.ServiceResult, 0, len(services))
	for _, svc := range services {
		res := ctrl.Deploy(cmd.Context(), svc)
		if !res.Failed() {
			state.Deployed[svc.Name] = true
		}
		results = append(results, res)
	}
	if err := manifest.SaveState(fsys, statePath, state); err != nil {
		return err
	}

	// Keep the installed schedule in step with what is deployed.
	log, err := config.GetLogger()
	if err != nil {
		return err
	}
	syncRes, syncErr := crontab.Sync(cmd.Context(), log.Logger, &crontab.ExecScheduler{}, m, state.Deployed)
	if syncErr == nil && syncRes.Changed {
		cmdfmt.Printf("Installed crontab fragments for %d services.\n", len(syncRes.Services))
	}

	if err := printResults(results); err != nil {
		return errors.Join(err, syncErr)
	}
	return syncErr
}
