// Package lifecycle implements the deploy, undeploy, start, stop, restart,
// status, and reload commands.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/awm/vaire-cfg/internal/cmdfmt"
	"github.com/awm/vaire-cfg/internal/config"
	"github.com/awm/vaire-cfg/internal/util"
	"github.com/awm/vaire-cfg/pkg/lifecycle"
	"github.com/awm/vaire-cfg/pkg/manifest"
	"github.com/awm/vaire-cfg/pkg/secret"
)

const wrapWidth = 60

// loadManifest reads and validates the manifest and secret store configured
// by the global flags.
func loadManifest() (afero.Fs, *manifest.Manifest, *manifest.SecretStore, error) {
	fsys := afero.NewOsFs()
	m, store, err := manifest.Load(fsys, viper.GetString(config.ManifestKey), viper.GetString(config.SecretsKey))
	if err != nil {
		return nil, nil, nil, err
	}
	return fsys, m, store, nil
}

// newController wires the systemd user session, secret renderer, and quadlet
// directory into a controller. The returned cleanup closes the supervisor
// connection.
func newController(ctx context.Context, fsys afero.Fs, store *manifest.SecretStore) (*lifecycle.Controller, func(), error) {
	log, err := config.GetLogger()
	if err != nil {
		return nil, nil, err
	}
	sup, err := lifecycle.NewSystemd(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to connect to the service manager: %w", err)
	}
	renderer := secret.NewRenderer(fsys, log.Logger, store)
	ctrl := lifecycle.NewController(fsys, log.Logger, sup, renderer, viper.GetString(config.UnitDirKey))
	return ctrl, func() { sup.Close() }, nil
}

// printResults renders the per-step outcomes and maps them to an exit
// status: nil when everything succeeded, PartialSuccess when some services
// succeeded, a plain error when all failed.
func printResults(results []lifecycle.ServiceResult) error {
	tbl := cmdfmt.NewPrintomatic(
		[]string{"service", "action", "target", "status", "message"},
		[]string{"service", "action", "target", "status", "message"})

	var failed, succeeded int
	for _, res := range results {
		if res.Failed() {
			failed++
		} else {
			succeeded++
		}
		for _, step := range res.Steps {
			msg := ""
			if step.Err != nil {
				msg = cmdfmt.Wrap(step.Err.Error(), wrapWidth)
			}
			tbl.AddItem(res.Service, res.Action, step.Target, step.Status.String(), msg)
		}
		if res.Err != nil {
			tbl.AddItem(res.Service, res.Action, "-", "failed", cmdfmt.Wrap(res.Err.Error(), wrapWidth))
		}
	}
	tbl.PrintRemaining()

	return failureError(failed, failed+succeeded,
		fmt.Errorf("operation failed for %d of %d services", failed, failed+succeeded))
}

// failureError maps a failure count to an exit status: nil when nothing
// failed, PartialSuccess when only some targets failed, a plain error when
// all of them did.
func failureError(failed, total int, err error) error {
	if failed == 0 {
		return nil
	}
	if failed < total {
		return util.NewCtlError(err, util.PartialSuccess)
	}
	return err
}
