package lifecycle

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Supervisor is the external process supervisor consumed by the controller.
// The orchestrator assumes nothing beyond these lifecycle primitives.
type Supervisor interface {
	StartUnit(ctx context.Context, unit string) error
	StopUnit(ctx context.Context, unit string) error
	// Reload re-reads unit definitions after quadlets change on disk.
	Reload(ctx context.Context) error
	IsActive(ctx context.Context, unit string) (bool, error)
	// Close releases any long lived resources held by the supervisor
	// connection.
	Close() error
}

// Systemd drives the user session systemd instance over D-Bus. Quadlets are
// installed per-user, so the user bus is used rather than the system bus.
type Systemd struct {
	conn *dbus.Conn
}

var _ Supervisor = &Systemd{}

func NewSystemd(ctx context.Context) (*Systemd, error) {
	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to the user bus: %w", err)
	}
	return &Systemd{conn: conn}, nil
}

func (s *Systemd) StartUnit(ctx context.Context, unit string) error {
	return s.runJob(ctx, unit, "start", s.conn.StartUnitContext)
}

func (s *Systemd) StopUnit(ctx context.Context, unit string) error {
	return s.runJob(ctx, unit, "stop", s.conn.StopUnitContext)
}

// runJob enqueues a systemd job and waits for its result. Any result other
// than "done" is a failure for that unit.
func (s *Systemd) runJob(ctx context.Context, unit string, op string, enqueue func(context.Context, string, string, chan<- string) (int, error)) error {
	result := make(chan string, 1)
	if _, err := enqueue(ctx, unit, "replace", result); err != nil {
		return fmt.Errorf("unable to %s %s: %w", op, unit, err)
	}
	select {
	case res := <-result:
		if res != "done" {
			return fmt.Errorf("%s job for %s finished with result %q", op, unit, res)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Systemd) Reload(ctx context.Context) error {
	if err := s.conn.ReloadContext(ctx); err != nil {
		return fmt.Errorf("unable to reload unit definitions: %w", err)
	}
	return nil
}

func (s *Systemd) IsActive(ctx context.Context, unit string) (bool, error) {
	prop, err := s.conn.GetUnitPropertyContext(ctx, unit, "ActiveState")
	if err != nil {
		return false, fmt.Errorf("unable to query %s: %w", unit, err)
	}
	return prop.Value.Value() == "active", nil
}

func (s *Systemd) Close() error {
	s.conn.Close()
	return nil
}
