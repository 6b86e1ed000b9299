package backup

import (
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/awm/vaire-cfg/internal/cmdfmt"
	"github.com/awm/vaire-cfg/internal/config"
	"github.com/awm/vaire-cfg/internal/util"
	"github.com/awm/vaire-cfg/pkg/backup"
	"github.com/awm/vaire-cfg/pkg/manifest"
)

type backupConfig struct {
	retention time.Duration
	filter    string
	keyRef    string
}

func NewBackupCmd() *cobra.Command {
	cfg := backupConfig{}
	cmd := &cobra.Command{
		Use:   "backup [<service> ...]",
		Short: "Encrypt and upload service artifacts, then apply retention",
		Long: `Back up one or more services: enumerate each service's backup glob patterns,
encrypt every matching artifact client-side, upload it to the configured
object store, and delete artifacts older than the retention threshold on both
the local and remote tier. Artifacts whose upload failed are never pruned.

The bucket, region, credentials, and encryption key come from the secret
store. Without arguments all services with backup patterns are processed.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackupCmd(cmd, args, cfg)
		},
	}
	cmd.Flags().DurationVar(&cfg.retention, "retention", 30*24*time.Hour,
		"Age threshold beyond which backed-up artifacts are deleted locally and remotely. Set to 0 to disable pruning.")
	cmd.Flags().StringVar(&cfg.filter, "filter", "", backup.FilterHelp)
	cmd.Flags().StringVar(&cfg.keyRef, "key-ref", defaultKeyRef,
		"Dotted secret store path of the hex-encoded AES-256 artifact encryption key.")
	return cmd
}

func runBackupCmd(cmd *cobra.Command, args []string, cfg backupConfig) error {
	fsys := afero.NewOsFs()
	m, store, err := manifest.Load(fsys, viper.GetString(config.ManifestKey), viper.GetString(config.SecretsKey))
	if err != nil {
		return err
	}
	services, err := m.Select(args)
	if err != nil {
		return err
	}

	s, err := loadSettings(store, cfg.keyRef)
	if err != nil {
		return err
	}
	objStore, err := newStore(cmd.Context(), s)
	if err != nil {
		return err
	}

	var filter backup.ArtifactFilter
	if cfg.filter != "" {
		if filter, err = backup.CompileFilter(cfg.filter); err != nil {
			return fmt.Errorf("invalid filter: %w", err)
		}
	}

	log, err := config.GetLogger()
	if err != nil {
		return err
	}
	pipeline := backup.NewPipeline(fsys, log.Logger, objStore, backup.Options{
		Key:        s.key,
		Prefix:     s.prefix,
		Retention:  cfg.retention,
		Filter:     filter,
		NumWorkers: viper.GetInt(config.NumWorkersKey),
	})

	reports := pipeline.RunAll(cmd.Context(), services)
	return printReports(reports)
}

func printReports(reports []backup.Report) error {
	tbl := cmdfmt.NewPrintomatic(
		[]string{"service", "step", "target", "size", "status", "message"},
		[]string{"service", "step", "target", "size", "status", "message"})

	var failed, succeeded int
	for _, rep := range reports {
		if rep.Failed() {
			failed++
		} else {
			succeeded++
		}
		for _, art := range rep.Artifacts {
			status, msg := "uploaded", ""
			if art.Err != nil {
				status, msg = "failed", cmdfmt.Wrap(art.Err.Error(), 60)
			}
			tbl.AddItem(rep.Service, "upload", art.Path, cmdfmt.FormatBytes(art.Size), status, msg)
		}
		for _, pruned := range rep.Pruned {
			status, msg := "pruned", ""
			if pruned.Err != nil {
				status, msg = "failed", cmdfmt.Wrap(pruned.Err.Error(), 60)
			}
			tbl.AddItem(rep.Service, "prune-"+pruned.Tier, pruned.Target, "", status, msg)
		}
		if rep.Err != nil {
			tbl.AddItem(rep.Service, "-", "-", "", "failed", cmdfmt.Wrap(rep.Err.Error(), 60))
		}
	}
	tbl.PrintRemaining()

	if failed == 0 {
		return nil
	}
	err := fmt.Errorf("backup failed for %d of %d services", failed, failed+succeeded)
	if succeeded > 0 {
		return util.NewCtlError(err, util.PartialSuccess)
	}
	return err
}
