package lifecycle

import (
	"github.com/spf13/cobra"

	"github.com/awm/vaire-cfg/pkg/lifecycle"
	"github.com/awm/vaire-cfg/pkg/resolve"
)

func NewStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start [<service> ...]",
		Short: "Start services in their declared unit order",
		Long: `Start the declared start units of one or more services, sequentially and in
the declared order. A failing unit aborts the rest of that service's list but
other requested services are still attempted.

Without arguments all services in the manifest are started.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnitsCmd(cmd, args, resolve.Up)
		},
	}
}

func NewStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop [<service> ...]",
		Short: "Stop services in their declared unit order",
		Long: `Stop the declared stop units of one or more services, sequentially and in
the declared order. Stop lists name dependents before the infrastructure
they depend on and are executed exactly as written, never reversed or
reordered.

Without arguments all services in the manifest are stopped.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnitsCmd(cmd, args, resolve.Down)
		},
	}
}

func NewRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart [<service> ...]",
		Short: "Stop and start services in their declared unit order",
		Long: `Restart one or more services: each service's declared stop list runs first,
then its start list. A failure while stopping skips the start phase for that
service; other requested services are still attempted.`,
		Args: cobra.ArbitraryArgs,
		RunE: runRestartCmd,
	}
}

func runUnitsCmd(cmd *cobra.Command, args []string, dir resolve.Direction) error {
	fsys, m, store, err := loadManifest()
	if err != nil {
		return err
	}
	ordered, err := resolve.Order(m, args, dir)
	if err != nil {
		return err
	}
	ctrl, cleanup, err := newController(cmd.Context(), fsys, store)
	if err != nil {
		return err
	}
	defer cleanup()

	op := ctrl.Start
	if dir == resolve.Down {
		op = ctrl.Stop
	}
	results := make([]lifecycle.ServiceResult, 0, len(ordered))
	for _, su := range ordered {
		results = append(results, op(cmd.Context(), su))
	}
	return printResults(results)
}

func runRestartCmd(cmd *cobra.Command, args []string) error {
	fsys, m, store, err := loadManifest()
	if err != nil {
		return err
	}
	down, err := resolve.Order(m, args, resolve.Down)
	if err != nil {
		return err
	}
	up, err := resolve.Order(m, args, resolve.Up)
	if err != nil {
		return err
	}
	ctrl, cleanup, err := newController(cmd.Context(), fsys, store)
	if err != nil {
		return err
	}
	defer cleanup()

	var results []lifecycle.ServiceResult
	for i := range down {
		stop := ctrl.Stop(cmd.Context(), down[i])
		results = append(results, stop)
		if stop.Failed() {
			continue
		}
		results = append(results, ctrl.Start(cmd.Context(), up[i]))
	}
	return printResults(results)
}
