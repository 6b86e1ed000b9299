// Package crontab merges per-service scheduled-task fragments into one
// installed schedule. The assembled body fully replaces the current
// schedule on every sync, so repeated installs are idempotent and fragments
// from undeployed services never linger.
package crontab

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/awm/vaire-cfg/pkg/manifest"
	"go.uber.org/zap"
)

var ErrSchedule = errors.New("unable to install schedule")

// Scheduler is the external schedule installer. Install replaces the entire
// current schedule; on failure the previous schedule must remain active.
type Scheduler interface {
	Current(ctx context.Context) (string, error)
	Validate(ctx context.Context, body string) error
	Install(ctx context.Context, body string) error
}

// SyncResult reports which services contributed fragments to the installed
// schedule.
type SyncResult struct {
	Services []string
	// Changed is false when the assembled body already matched the current
	// schedule and no install was needed.
	Changed bool
}

// Assemble builds the full replacement schedule body from the deployed
// services' fragments, in manifest order. Each fragment is copied verbatim
// inside service-name-tagged comment boundaries.
func Assemble(m *manifest.Manifest, deployed map[string]bool) (string, []string) {
	var body strings.Builder
	var contributors []string
	for _, svc := range m.Services {
		if svc.Crontab == "" || !deployed[svc.Name] {
			continue
		}
		fmt.Fprintf(&body, "# vaire:%s\n", svc.Name)
		body.WriteString(svc.Crontab)
		if !strings.HasSuffix(svc.Crontab, "\n") {
			body.WriteString("\n")
		}
		contributors = append(contributors, svc.Name)
	}
	return body.String(), contributors
}

// Sync assembles and installs the schedule. Each fragment is validated
// individually first so a rejected schedule is reported against the
// offending service; the previous schedule stays active until a fully valid
// replacement is accepted.
func Sync(ctx context.Context, log *zap.Logger, sched Scheduler, m *manifest.Manifest, deployed map[string]bool) (SyncResult, error) {
	body, contributors := Assemble(m, deployed)
	result := SyncResult{Services: contributors}

	for _, svc := range m.Services {
		if svc.Crontab == "" || !deployed[svc.Name] {
			continue
		}
		if err := sched.Validate(ctx, svc.Crontab); err != nil {
			return result, fmt.Errorf("%w: service %q fragment rejected: %w", ErrSchedule, svc.Name, err)
		}
	}

	if current, err := sched.Current(ctx); err == nil && current == body {
		log.Debug("schedule already up to date")
		return result, nil
	}

	if err := sched.Install(ctx, body); err != nil {
		return result, fmt.Errorf("%w: %w", ErrSchedule, err)
	}
	result.Changed = true
	log.Info("installed schedule", zap.Strings("services", contributors))
	return result, nil
}
