package lifecycle

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/awm/vaire-cfg/internal/config"
	"github.com/awm/vaire-cfg/pkg/crontab"
	"github.com/awm/vaire-cfg/pkg/lifecycle"
	"github.com/awm/vaire-cfg/pkg/manifest"
)

func NewUndeployCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undeploy <service> ...",
		Short: "Stop a service and remove its installed quadlets",
		Long: `Undeploy one or more services: stop their declared units, remove their
quadlet unit files from the managed unit directory, and reload the service
manager. The services are cleared from the state file and their crontab
fragments are removed from the installed schedule.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runUndeployCmd,
	}
}

func runUndeployCmd(cmd *cobra.Command, args []string) error {
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
		res := ctrl.Undeploy(cmd.Context(), svc)
		if !res.Failed() {
			delete(state.Deployed, svc.Name)
		}
		results = append(results, res)
	}
	if err := manifest.SaveState(fsys, statePath, state); err != nil {
		return err
	}

	log, err := config.GetLogger()
	if err != nil {
		return err
	}
	_, syncErr := crontab.Sync(cmd.Context(), log.Logger, &crontab.ExecScheduler{}, m, state.Deployed)

	if err := printResults(results); err != nil {
		return errors.Join(err, syncErr)
	}
	return syncErr
}
