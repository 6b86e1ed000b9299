// Package secret implements the secrets command.
package secret

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/awm/vaire-cfg/internal/cmdfmt"
	"github.com/awm/vaire-cfg/internal/config"
	"github.com/awm/vaire-cfg/internal/util"
	"github.com/awm/vaire-cfg/pkg/manifest"
	"github.com/awm/vaire-cfg/pkg/secret"
)

func NewSecretsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "secrets [<service> ...]",
		Short: "Render secret file templates without deploying",
		Long: `Render the secret file templates of one or more services from the secret
store. Rendering is atomic and idempotent: destinations are replaced via
temp-and-rename and unchanged content is left untouched. Error messages name
placeholders, never secret values.

Without arguments all services' secret files are rendered.`,
		Args: cobra.ArbitraryArgs,
		RunE: runSecretsCmd,
	}
}

func runSecretsCmd(cmd *cobra.Command, args []string) error {
	fsys := afero.NewOsFs()
	m, store, err := manifest.Load(fsys, viper.GetString(config.ManifestKey), viper.GetString(config.SecretsKey))
	if err != nil {
		return err
	}
	services, err := m.Select(args)
	if err != nil {
		return err
	}
	log, err := config.GetLogger()
	if err != nil {
		return err
	}
	renderer := secret.NewRenderer(fsys, log.Logger, store)

	tbl := cmdfmt.NewPrintomatic(
		[]string{"service", "file", "status", "message"},
		[]string{"service", "file", "status", "message"})
	var failed, total int
	for _, svc := range services {
		for _, dest := range svc.SecretFiles {
			total++
			if err := renderer.Render(dest); err != nil {
				failed++
				tbl.AddItem(svc.Name, dest, "failed", cmdfmt.Wrap(err.Error(), 60))
				continue
			}
			tbl.AddItem(svc.Name, dest, "rendered", "")
		}
	}
	tbl.PrintRemaining()

	if failed == 0 {
		return nil
	}
	err = fmt.Errorf("unable to render %d of %d secret files", failed, total)
	if failed < total {
		return util.NewCtlError(err, util.PartialSuccess)
	}
	return err
}
