// Package cmd assembles the vaire command tree.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/awm/vaire-cfg/internal/cmd/backup"
	"github.com/awm/vaire-cfg/internal/cmd/lifecycle"
	"github.com/awm/vaire-cfg/internal/cmd/schedule"
	"github.com/awm/vaire-cfg/internal/cmd/secret"
	"github.com/awm/vaire-cfg/internal/config"
	"github.com/awm/vaire-cfg/internal/util"
)

func newRootCmd(version, commit string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "vaire",
		Version: fmt.Sprintf("%s (commit %s)", version, commit),
		Short: "Manifest-driven deployment of container services on a single host",
		Long: `vaire deploys, operates, and backs up container services declared in a
service manifest. Services are defined as quadlet unit files; secrets are
rendered from a permission-checked secret store; scheduled tasks are merged
into one crontab; backup artifacts are encrypted before they leave the host.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.InitGlobalFlags(cmd)

	cmd.AddCommand(
		lifecycle.NewDeployCmd(),
		lifecycle.NewUndeployCmd(),
		lifecycle.NewStartCmd(),
		lifecycle.NewStopCmd(),
		lifecycle.NewRestartCmd(),
		lifecycle.NewStatusCmd(),
		lifecycle.NewReloadCmd(),
		schedule.NewCrontabCmd(),
		secret.NewSecretsCmd(),
		backup.NewBackupCmd(),
		backup.NewFetchCmd(),
	)
	return cmd
}

// Execute runs the command tree and exits the process with the outcome's
// exit code. Partial successes exit with a distinct code so schedulers can
// tell them from total failures.
func Execute(version, commit string) {
	err := newRootCmd(version, commit).Execute()
	config.Cleanup()
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	var ctlErr *util.CtlError
	if errors.As(err, &ctlErr) {
		os.Exit(int(ctlErr.ExitCode()))
	}
	os.Exit(int(util.GeneralError))
}
