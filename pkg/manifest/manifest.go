// Package manifest defines Go-native structs for the vaire service manifest
// and the secret store backing it, along with loading and validation. The
// manifest is the single declarative source for what the orchestrator
// deploys, starts, stops, and backs up; it is loaded once per invocation and
// immutable afterwards.
package manifest

import (
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Service describes one managed service as declared in the manifest.
type Service struct {
	// Name is the manifest mapping key, unique across the manifest.
	Name string `yaml:"-"`
	// Quadlets are the unit definition files this service deploys, in order.
	Quadlets []string `yaml:"quadlets"`
	// Start and Stop list unit names in the exact order they must be acted
	// on. Stop order is declared independently: dependents come before the
	// infrastructure they depend on, and the orchestrator executes the list
	// as written.
	Start []string `yaml:"start"`
	Stop  []string `yaml:"stop"`
	// Backups are glob patterns selecting artifacts for remote backup.
	Backups []string `yaml:"backups"`
	// SecretFiles are destination paths whose <path>.tmpl templates are
	// rendered from the secret store before deployment.
	SecretFiles []string `yaml:"secretfiles"`
	// Crontab is an opaque scheduled-task fragment merged verbatim.
	Crontab string `yaml:"crontab"`
}

// Manifest holds all declared services in declaration order plus a name
// index. Declaration order is semantically significant: it is the default
// order services are processed in.
type Manifest struct {
	Services []*Service

	byName map[string]*Service
}

// Get returns the named service or ErrUnknownService.
func (m *Manifest) Get(name string) (*Service, error) {
	svc, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, name)
	}
	return svc, nil
}

// Select resolves the requested service names against the manifest,
// returning them in manifest declaration order. An empty request selects
// every declared service.
func (m *Manifest) Select(requested []string) ([]*Service, error) {
	if len(requested) == 0 {
		return m.Services, nil
	}
	want := make(map[string]struct{}, len(requested))
	for _, name := range requested {
		if _, err := m.Get(name); err != nil {
			return nil, err
		}
		want[name] = struct{}{}
	}
	selected := make([]*Service, 0, len(want))
	for _, svc := range m.Services {
		if _, ok := want[svc.Name]; ok {
			selected = append(selected, svc)
		}
	}
	return selected, nil
}

// Load parses and validates the manifest and secret store. It has no side
// effects: all validation failures are detected here, before the caller
// performs any operation. The returned manifest is immutable by convention.
func Load(fsys afero.Fs, manifestPath string, secretsPath string) (*Manifest, *SecretStore, error) {
	m, err := fromDisk(fsys, manifestPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrLoadingManifest, err)
	}
	if err := m.validate(fsys); err != nil {
		return nil, nil, err
	}
	store, err := LoadSecrets(fsys, secretsPath)
	if err != nil {
		return nil, nil, err
	}
	return m, store, nil
}

// fromDisk decodes the manifest YAML. The services mapping is decoded
// through yaml.Node so declaration order is preserved and duplicate service
// names are caught explicitly.
func fromDisk(fsys afero.Fs, path string) (*Manifest, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Services yaml.Node `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Services.Kind == 0 || doc.Services.IsZero() {
		return nil, fmt.Errorf("no services declared")
	}
	if doc.Services.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("services must be a mapping of name to service definition")
	}

	m := &Manifest{byName: make(map[string]*Service)}
	for i := 0; i+1 < len(doc.Services.Content); i += 2 {
		keyNode, valNode := doc.Services.Content[i], doc.Services.Content[i+1]
		svc := &Service{Name: keyNode.Value}
		if err := valNode.Decode(svc); err != nil {
			return nil, fmt.Errorf("service %q: %w", svc.Name, err)
		}
		if _, exists := m.byName[svc.Name]; exists {
			return nil, fmt.Errorf("service %q declared more than once", svc.Name)
		}
		m.Services = append(m.Services, svc)
		m.byName[svc.Name] = svc
	}
	return m, nil
}

// validate enforces the structural manifest invariants: quadlet files exist
// on disk and every start/stop entry names a unit generated by that
// service's quadlets.
func (m *Manifest) validate(fsys afero.Fs) error {
	for _, svc := range m.Services {
		for _, q := range svc.Quadlets {
			if exists, err := afero.Exists(fsys, q); err != nil {
				return &ValidationError{Service: svc.Name, Field: "quadlets", Err: err}
			} else if !exists {
				return &ValidationError{Service: svc.Name, Field: "quadlets", Err: fmt.Errorf("file %q does not exist", q)}
			}
		}
		units, err := svc.Units()
		if err != nil {
			return &ValidationError{Service: svc.Name, Field: "quadlets", Err: err}
		}
		for field, list := range map[string][]string{"start": svc.Start, "stop": svc.Stop} {
			for _, unit := range list {
				if _, ok := units[unit]; !ok {
					return &ValidationError{
						Service: svc.Name,
						Field:   field,
						Err:     fmt.Errorf("unit %q is not generated by any declared quadlet", unit),
					}
				}
			}
		}
	}
	return nil
}
