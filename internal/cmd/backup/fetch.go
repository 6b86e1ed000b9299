package backup

import (
	"path"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/awm/vaire-cfg/internal/cmdfmt"
	"github.com/awm/vaire-cfg/internal/config"
	"github.com/awm/vaire-cfg/pkg/backup"
	"github.com/awm/vaire-cfg/pkg/manifest"
)

func NewFetchCmd() *cobra.Command {
	var keyRef string
	cmd := &cobra.Command{
		Use:   "fetch <service> <object-name>",
		Short: "Download and decrypt a stored backup artifact",
		Long: `Fetch one backup object for a service from the remote object store, decrypt
it, and write the plaintext into the current directory. The object name is
the key below the service prefix, as printed by the backup command (e.g.
dump.zip.20260801T000000Z.enc).`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetchCmd(cmd, args[0], args[1], keyRef)
		},
	}
	cmd.Flags().StringVar(&keyRef, "key-ref", defaultKeyRef,
		"Dotted secret store path of the hex-encoded AES-256 artifact encryption key.")
	return cmd
}

func runFetchCmd(cmd *cobra.Command, service, object, keyRef string) error {
	fsys := afero.NewOsFs()
	m, store, err := manifest.Load(fsys, viper.GetString(config.ManifestKey), viper.GetString(config.SecretsKey))
	if err != nil {
		return err
	}
	if _, err := m.Get(service); err != nil {
		return err
	}

	s, err := loadSettings(store, keyRef)
	if err != nil {
		return err
	}
	objStore, err := newStore(cmd.Context(), s)
	if err != nil {
		return err
	}
	log, err := config.GetLogger()
	if err != nil {
		return err
	}

	pipeline := backup.NewPipeline(fsys, log.Logger, objStore, backup.Options{Key: s.key, Prefix: s.prefix})
	dest, err := pipeline.Fetch(cmd.Context(), path.Join(s.prefix, service, object), ".")
	if err != nil {
		return err
	}
	cmdfmt.Printf("Fetched %s\n", dest)
	return nil
}
