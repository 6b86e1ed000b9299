// Package resolve computes the order in which services and their units are
// acted on. Ordering across services follows manifest declaration order and
// each service's own start/stop list is honored verbatim; cross-service
// dependency inference is explicitly out of scope and left to manifest
// authoring.
package resolve

import (
	"github.com/awm/vaire-cfg/pkg/manifest"
)

// Direction selects which declared unit list applies.
type Direction int

const (
	// Up selects each service's start list.
	Up Direction = iota
	// Down selects each service's stop list. Stop lists are declared with
	// dependents ahead of their infrastructure and must be executed exactly
	// as written; Down is not the reverse of Up.
	Down
)

// ServiceUnits pairs a service with the units to act on, in order.
type ServiceUnits struct {
	Service *manifest.Service
	Units   []string
}

// Order resolves the requested service names to their declared units. The
// returned services follow manifest declaration order; units within a
// service follow the declared start or stop list untouched. Unknown service
// names fail before anything else happens.
func Order(m *manifest.Manifest, requested []string, dir Direction) ([]ServiceUnits, error) {
	services, err := m.Select(requested)
	if err != nil {
		return nil, err
	}
	ordered := make([]ServiceUnits, 0, len(services))
	for _, svc := range services {
		units := svc.Start
		if dir == Down {
			units = svc.Stop
		}
		ordered = append(ordered, ServiceUnits{Service: svc, Units: units})
	}
	return ordered, nil
}
