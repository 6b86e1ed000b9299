// Package schedule implements the crontab command.
package schedule

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/awm/vaire-cfg/internal/cmdfmt"
	"github.com/awm/vaire-cfg/internal/config"
	"github.com/awm/vaire-cfg/pkg/crontab"
	"github.com/awm/vaire-cfg/pkg/manifest"
)

func NewCrontabCmd() *cobra.Command {
	var show bool
	cmd := &cobra.Command{
		Use:   "crontab",
		Short: "Synthesize and install the crontab for all deployed services",
		Long: `Assemble every deployed service's crontab fragment, verbatim and tagged with
a service-name boundary comment, into a single schedule and install it as the
complete current crontab. The install is a full replacement: entries from
services no longer deployed never survive. The previous schedule stays active
if any fragment is rejected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrontabCmd(cmd, show)
		},
	}
	cmd.Flags().BoolVar(&show, "show", false, "Print the assembled schedule instead of installing it.")
	return cmd
}

func runCrontabCmd(cmd *cobra.Command, show bool) error {
	fsys := afero.NewOsFs()
	m, _, err := manifest.Load(fsys, viper.GetString(config.ManifestKey), viper.GetString(config.SecretsKey))
	if err != nil {
		return err
	}
	state, err := manifest.LoadState(fsys, viper.GetString(config.StateKey))
	if err != nil {
		return err
	}

	if show {
		body, _ := crontab.Assemble(m, state.Deployed)
		cmdfmt.Printf("%s", body)
		return nil
	}

	log, err := config.GetLogger()
	if err != nil {
		return err
	}
	result, err := crontab.Sync(cmd.Context(), log.Logger, &crontab.ExecScheduler{}, m, state.Deployed)
	if err != nil {
		return err
	}
	if result.Changed {
		cmdfmt.Printf("Installed crontab fragments for %d services.\n", len(result.Services))
	} else {
		cmdfmt.Printf("Crontab already up to date (%d services).\n", len(result.Services))
	}
	return nil
}
