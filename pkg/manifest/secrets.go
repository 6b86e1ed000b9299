package manifest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// SecretStore is the nested tree of scalar secrets loaded from the secrets
// file. Values are addressed by dotted key path, e.g.
// "services.partdb.mysql.user_password".
type SecretStore struct {
	tree map[string]any
}

// Tree exposes the raw secret tree for template rendering. Callers must not
// mutate it and must never log its contents.
func (s *SecretStore) Tree() map[string]any {
	return s.tree
}

// Lookup resolves a dotted key path to its scalar value. Errors include only
// the key path, never any secret value.
func (s *SecretStore) Lookup(path string) (string, error) {
	var node any = s.tree
	for _, part := range strings.Split(path, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrSecretKeyNotFound, path)
		}
		if node, ok = m[part]; !ok {
			return "", fmt.Errorf("%w: %q", ErrSecretKeyNotFound, path)
		}
	}
	switch v := node.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrSecretKeyNotScalar, path)
	}
}

// LoadSecrets reads the secret store after verifying the file is only
// accessible by its owner. A store readable by group or other is a fatal
// configuration error and nothing is loaded.
func LoadSecrets(fsys afero.Fs, path string) (*SecretStore, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadingSecrets, err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return nil, fmt.Errorf("%w: %s has mode %04o, want 0600 or stricter", ErrSecretPermissions, path, perm)
	}

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadingSecrets, err)
	}
	var doc struct {
		Secrets map[string]any `yaml:"secrets"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadingSecrets, err)
	}
	if doc.Secrets == nil {
		return nil, fmt.Errorf("%w: no top-level secrets key", ErrLoadingSecrets)
	}
	return &SecretStore{tree: doc.Secrets}, nil
}
