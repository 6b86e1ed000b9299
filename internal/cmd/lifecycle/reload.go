package lifecycle

import (
	"github.com/spf13/cobra"

	"github.com/awm/vaire-cfg/internal/cmdfmt"
)

func NewReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the service manager's unit definitions",
		Args:  cobra.NoArgs,
		RunE:  runReloadCmd,
	}
}

func runReloadCmd(cmd *cobra.Command, args []string) error {
	fsys, _, store, err := loadManifest()
	if err != nil {
		return err
	}
	ctrl, cleanup, err := newController(cmd.Context(), fsys, store)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := ctrl.Reload(cmd.Context()); err != nil {
		return err
	}
	cmdfmt.Printf("Unit definitions reloaded.\n")
	return nil
}
