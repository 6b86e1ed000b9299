package crontab

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ExecScheduler installs schedules through the crontab binary. Validation
// uses crontab's dry-run flag against a temporary file so a malformed body
// never replaces the active schedule.
type ExecScheduler struct {
	// Binary overrides the crontab executable, mainly for tests.
	Binary string
}

var _ Scheduler = &ExecScheduler{}

func (s *ExecScheduler) binary() string {
	if s.Binary != "" {
		return s.Binary
	}
	return "crontab"
}

func (s *ExecScheduler) Current(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, s.binary(), "-l").Output()
	if err != nil {
		// crontab -l fails when no schedule is installed yet; treat that as
		// an empty schedule.
		if ee, ok := err.(*exec.ExitError); ok && strings.Contains(string(ee.Stderr), "no crontab") {
			return "", nil
		}
		return "", fmt.Errorf("unable to read current schedule: %w", err)
	}
	return string(out), nil
}

func (s *ExecScheduler) Validate(ctx context.Context, body string) error {
	return s.run(ctx, body, "-n")
}

func (s *ExecScheduler) Install(ctx context.Context, body string) error {
	if err := s.run(ctx, body, "-n"); err != nil {
		return err
	}
	return s.run(ctx, body)
}

func (s *ExecScheduler) run(ctx context.Context, body string, extraArgs ...string) error {
	tmp, err := os.CreateTemp("", "vaire-crontab-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	args := append(extraArgs, tmp.Name())
	if out, err := exec.CommandContext(ctx, s.binary(), args...).CombinedOutput(); err != nil {
		return fmt.Errorf("%s %s: %w: %s", s.binary(), strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}
