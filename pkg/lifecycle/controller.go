// Package lifecycle invokes deploy, start, and stop operations against the
// external process supervisor, one service at a time, in resolver-computed
// order. A failure inside one service aborts that service's remaining steps
// but never affects other requested services; every operation returns
// per-step outcomes so partial success is reported precisely.
package lifecycle

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/awm/vaire-cfg/pkg/manifest"
	"github.com/awm/vaire-cfg/pkg/resolve"
	"github.com/awm/vaire-cfg/pkg/secret"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

type Controller struct {
	fsys     afero.Fs
	log      *zap.Logger
	sup      Supervisor
	renderer *secret.Renderer
	// unitDir is where quadlets are installed for the supervisor to pick up.
	unitDir string
}

func NewController(fsys afero.Fs, log *zap.Logger, sup Supervisor, renderer *secret.Renderer, unitDir string) *Controller {
	return &Controller{
		fsys:     fsys,
		log:      log.With(zap.String("component", "lifecycle")),
		sup:      sup,
		renderer: renderer,
		unitDir:  unitDir,
	}
}

// Start brings up the service's declared start units sequentially. The first
// failure aborts the remaining units in this service's list.
func (c *Controller) Start(ctx context.Context, su resolve.ServiceUnits) ServiceResult {
	c.log.Info("starting service", zap.String("service", su.Service.Name))
	return c.applyUnits(ctx, su, "start", c.sup.StartUnit)
}

// Stop brings down the service's declared stop units sequentially, exactly
// as declared: dependents are listed ahead of their infrastructure and the
// controller must observe each unit's outcome before moving to the next.
func (c *Controller) Stop(ctx context.Context, su resolve.ServiceUnits) ServiceResult {
	c.log.Info("stopping service", zap.String("service", su.Service.Name))
	return c.applyUnits(ctx, su, "stop", c.sup.StopUnit)
}

func (c *Controller) applyUnits(ctx context.Context, su resolve.ServiceUnits, action string, op func(context.Context, string) error) ServiceResult {
	result := ServiceResult{Service: su.Service.Name, Action: action}
	failed := false
	for _, unit := range su.Units {
		if failed {
			result.Steps = append(result.Steps, StepResult{Target: unit, Status: StepSkipped})
			continue
		}
		if err := op(ctx, unit); err != nil {
			c.log.Error("unit operation failed",
				zap.String("service", su.Service.Name),
				zap.String("unit", unit),
				zap.String("action", action),
				zap.Error(err))
			result.Steps = append(result.Steps, StepResult{Target: unit, Status: StepFailed, Err: err})
			failed = true
			continue
		}
		result.Steps = append(result.Steps, StepResult{Target: unit, Status: StepOK})
	}
	return result
}

// Deploy renders the service's secret files, installs its quadlets into the
// unit directory, and reloads the supervisor's unit definitions. A render or
// install failure blocks the rest of this service's deploy.
func (c *Controller) Deploy(ctx context.Context, svc *manifest.Service) ServiceResult {
	c.log.Info("deploying service", zap.String("service", svc.Name))
	result := ServiceResult{Service: svc.Name, Action: "deploy"}

	failed := false
	for _, dest := range svc.SecretFiles {
		if failed {
			result.Steps = append(result.Steps, StepResult{Target: dest, Status: StepSkipped})
			continue
		}
		if err := c.renderer.Render(dest); err != nil {
			result.Steps = append(result.Steps, StepResult{Target: dest, Status: StepFailed, Err: err})
			failed = true
			continue
		}
		result.Steps = append(result.Steps, StepResult{Target: dest, Status: StepOK})
	}

	for _, quadlet := range svc.Quadlets {
		if failed {
			result.Steps = append(result.Steps, StepResult{Target: quadlet, Status: StepSkipped})
			continue
		}
		step := c.installQuadlet(quadlet)
		result.Steps = append(result.Steps, step)
		if step.Status == StepFailed {
			failed = true
		}
	}
	if failed {
		return result
	}

	if err := c.sup.Reload(ctx); err != nil {
		result.Err = err
	}
	return result
}

// Undeploy stops the service's declared stop units, removes its installed
// quadlets, and reloads the supervisor. Missing installed files are not an
// error: undeploy is idempotent.
func (c *Controller) Undeploy(ctx context.Context, svc *manifest.Service) ServiceResult {
	c.log.Info("undeploying service", zap.String("service", svc.Name))
	result := c.applyUnits(ctx, resolve.ServiceUnits{Service: svc, Units: svc.Stop}, "undeploy", c.sup.StopUnit)
	if result.Failed() {
		return result
	}

	for _, quadlet := range svc.Quadlets {
		installed := filepath.Join(c.unitDir, filepath.Base(quadlet))
		if err := c.fsys.Remove(installed); err != nil {
			if exists, _ := afero.Exists(c.fsys, installed); !exists {
				result.Steps = append(result.Steps, StepResult{Target: installed, Status: StepUnchanged})
				continue
			}
			result.Steps = append(result.Steps, StepResult{Target: installed, Status: StepFailed, Err: err})
			return result
		}
		result.Steps = append(result.Steps, StepResult{Target: installed, Status: StepOK})
	}

	if err := c.sup.Reload(ctx); err != nil {
		result.Err = err
	}
	return result
}

// Reload asks the supervisor to re-read unit definitions.
func (c *Controller) Reload(ctx context.Context) error {
	c.log.Info("reloading unit definitions")
	return c.sup.Reload(ctx)
}

// ServiceStatus is the per-service view reported by the status command.
type ServiceStatus struct {
	Service  string
	Deployed bool
	Running  bool
	Err      error
}

// Status reports whether the service is deployed and whether its start units
// are all active. Services without start units count as running when
// deployed, matching how passive services (networks, volumes) behave.
func (c *Controller) Status(ctx context.Context, svc *manifest.Service, deployed bool) ServiceStatus {
	status := ServiceStatus{Service: svc.Name, Deployed: deployed}
	if !deployed {
		return status
	}
	status.Running = true
	for _, unit := range svc.Start {
		active, err := c.sup.IsActive(ctx, unit)
		if err != nil {
			status.Err = fmt.Errorf("unable to query unit %s: %w", unit, err)
			status.Running = false
			return status
		}
		if !active {
			status.Running = false
			return status
		}
	}
	return status
}
