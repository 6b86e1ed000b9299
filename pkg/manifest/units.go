package manifest

import (
	"fmt"
	"path/filepath"
	"strings"
)

// UnitForQuadlet derives the systemd unit name generated for a quadlet file,
// following the podman-systemd generator naming rules. Plain unit files
// (.service, .timer) keep their name as-is.
func UnitForQuadlet(path string) (string, error) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	if name == "" {
		return "", fmt.Errorf("quadlet %q has no base name", path)
	}
	switch ext {
	case ".container", ".kube", ".image", ".build":
		return name + ".service", nil
	case ".pod":
		return name + "-pod.service", nil
	case ".volume":
		return name + "-volume.service", nil
	case ".network":
		return name + "-network.service", nil
	case ".service", ".timer":
		return base, nil
	default:
		return "", fmt.Errorf("quadlet %q has unsupported extension %q", path, ext)
	}
}

// Units returns the set of unit names generated by a service's quadlets.
func (s *Service) Units() (map[string]struct{}, error) {
	units := make(map[string]struct{}, len(s.Quadlets))
	for _, q := range s.Quadlets {
		unit, err := UnitForQuadlet(q)
		if err != nil {
			return nil, err
		}
		units[unit] = struct{}{}
	}
	return units, nil
}
