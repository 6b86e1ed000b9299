// Package backup implements the backup and fetch commands.
package backup

import (
	"context"
	"errors"
	"fmt"

	"github.com/awm/vaire-cfg/pkg/backup"
	"github.com/awm/vaire-cfg/pkg/manifest"
)

// Secret store paths for the object store settings and credentials. Keeping
// them in the secret store means the manifest stays shareable.
const (
	bucketRef     = "services.backup.bucket"
	regionRef     = "services.backup.region"
	prefixRef     = "services.backup.prefix"
	defaultKeyRef = "services.backup.key"
	accessKeyRef  = "apis.aws.key"
	secretKeyRef  = "apis.aws.secret"

	defaultPrefix = "backups"
)

// settings bundles everything needed to reach and decrypt the remote tier.
type settings struct {
	prefix string
	key    []byte
	s3     backup.S3Config
}

func loadSettings(store *manifest.SecretStore, keyRef string) (settings, error) {
	s := settings{}
	var err error
	if s.s3.Bucket, err = store.Lookup(bucketRef); err != nil {
		return s, fmt.Errorf("backup is not configured: %w", err)
	}
	if s.s3.Region, err = store.Lookup(regionRef); err != nil {
		return s, fmt.Errorf("backup is not configured: %w", err)
	}
	if s.s3.AccessKey, err = store.Lookup(accessKeyRef); err != nil {
		return s, fmt.Errorf("backup is not configured: %w", err)
	}
	if s.s3.SecretKey, err = store.Lookup(secretKeyRef); err != nil {
		return s, fmt.Errorf("backup is not configured: %w", err)
	}

	s.prefix, err = store.Lookup(prefixRef)
	if errors.Is(err, manifest.ErrSecretKeyNotFound) {
		s.prefix = defaultPrefix
	} else if err != nil {
		return s, err
	}

	if s.key, err = backup.KeyFromSecret(store, keyRef); err != nil {
		return s, err
	}
	return s, nil
}

func newStore(ctx context.Context, s settings) (backup.ObjectStore, error) {
	return backup.NewS3Store(ctx, s.s3)
}
