package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/awm/vaire-cfg/pkg/manifest"
	"github.com/awm/vaire-cfg/pkg/resolve"
	"github.com/awm/vaire-cfg/pkg/secret"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSupervisor records the order of lifecycle calls and fails units on
// demand.
type fakeSupervisor struct {
	calls   []string
	failOn  map[string]error
	reloads int
	active  map[string]bool
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{failOn: map[string]error{}, active: map[string]bool{}}
}

func (f *fakeSupervisor) StartUnit(_ context.Context, unit string) error {
	f.calls = append(f.calls, "start "+unit)
	return f.failOn[unit]
}

func (f *fakeSupervisor) StopUnit(_ context.Context, unit string) error {
	f.calls = append(f.calls, "stop "+unit)
	return f.failOn[unit]
}

func (f *fakeSupervisor) Reload(context.Context) error {
	f.reloads++
	return nil
}

func (f *fakeSupervisor) IsActive(_ context.Context, unit string) (bool, error) {
	return f.active[unit], nil
}

func (f *fakeSupervisor) Close() error { return nil }

func newTestController(t *testing.T, sup Supervisor) (*Controller, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "secrets.yml", []byte("secrets: {db: {password: s3cret}}"), 0600))
	store, err := manifest.LoadSecrets(fsys, "secrets.yml")
	require.NoError(t, err)
	renderer := secret.NewRenderer(fsys, zap.NewNop(), store)
	return NewController(fsys, zap.NewNop(), sup, renderer, "units"), fsys
}

func TestStopHonorsDeclaredOrder(t *testing.T) {
	sup := newFakeSupervisor()
	c, _ := newTestController(t, sup)

	svc := &manifest.Service{Name: "partdb", Stop: []string{"partdb.service", "partdb-db.service"}}
	result := c.Stop(context.Background(), resolve.ServiceUnits{Service: svc, Units: svc.Stop})

	assert.False(t, result.Failed())
	assert.Equal(t, []string{"stop partdb.service", "stop partdb-db.service"}, sup.calls)
}

func TestStopFailsFastWithinService(t *testing.T) {
	sup := newFakeSupervisor()
	sup.failOn["app.service"] = errors.New("unit stuck")
	c, _ := newTestController(t, sup)

	svc := &manifest.Service{Name: "db", Stop: []string{"app.service", "db.service"}}
	result := c.Stop(context.Background(), resolve.ServiceUnits{Service: svc, Units: svc.Stop})

	require.True(t, result.Failed())
	require.Len(t, result.Steps, 2)
	assert.Equal(t, StepFailed, result.Steps[0].Status)
	assert.Equal(t, StepSkipped, result.Steps[1].Status)
	// db.service must never have been attempted.
	assert.Equal(t, []string{"stop app.service"}, sup.calls)
}

func TestFailureIsIsolatedAcrossServices(t *testing.T) {
	sup := newFakeSupervisor()
	sup.failOn["x.service"] = errors.New("boom")
	c, _ := newTestController(t, sup)

	x := &manifest.Service{Name: "x", Stop: []string{"x.service"}}
	y := &manifest.Service{Name: "y", Stop: []string{"y.service"}}

	rx := c.Stop(context.Background(), resolve.ServiceUnits{Service: x, Units: x.Stop})
	ry := c.Stop(context.Background(), resolve.ServiceUnits{Service: y, Units: y.Stop})

	assert.True(t, rx.Failed())
	assert.False(t, ry.Failed())
	assert.Contains(t, sup.calls, "stop y.service")
}

func TestDeployInstallsQuadletsAndReloads(t *testing.T) {
	sup := newFakeSupervisor()
	c, fsys := newTestController(t, sup)
	require.NoError(t, afero.WriteFile(fsys, "q/partdb.container", []byte("[Container]\nImage=partdb\n"), 0644))
	require.NoError(t, afero.WriteFile(fsys, "env.tmpl", []byte("PASS={{ .db.password }}\n"), 0600))

	svc := &manifest.Service{
		Name:        "partdb",
		Quadlets:    []string{"q/partdb.container"},
		SecretFiles: []string{"env"},
	}
	result := c.Deploy(context.Background(), svc)
	require.False(t, result.Failed(), "deploy: %+v", result)
	assert.Equal(t, 1, sup.reloads)

	installed, err := afero.ReadFile(fsys, "units/partdb.container")
	require.NoError(t, err)
	assert.Contains(t, string(installed), "Image=partdb")

	env, err := afero.ReadFile(fsys, "env")
	require.NoError(t, err)
	assert.Equal(t, "PASS=s3cret\n", string(env))
}

func TestDeployLeavesUnchangedQuadletsAlone(t *testing.T) {
	sup := newFakeSupervisor()
	c, fsys := newTestController(t, sup)
	require.NoError(t, afero.WriteFile(fsys, "q/partdb.container", []byte("[Container]\n"), 0644))

	svc := &manifest.Service{Name: "partdb", Quadlets: []string{"q/partdb.container"}}
	first := c.Deploy(context.Background(), svc)
	require.False(t, first.Failed())

	second := c.Deploy(context.Background(), svc)
	require.False(t, second.Failed())
	require.Len(t, second.Steps, 1)
	assert.Equal(t, StepUnchanged, second.Steps[0].Status)
}

func TestDeployBlockedByRenderFailure(t *testing.T) {
	sup := newFakeSupervisor()
	c, fsys := newTestController(t, sup)
	require.NoError(t, afero.WriteFile(fsys, "q/partdb.container", []byte("[Container]\n"), 0644))
	require.NoError(t, afero.WriteFile(fsys, "env.tmpl", []byte("{{ .db.missing }}"), 0600))

	svc := &manifest.Service{
		Name:        "partdb",
		Quadlets:    []string{"q/partdb.container"},
		SecretFiles: []string{"env"},
	}
	result := c.Deploy(context.Background(), svc)
	require.True(t, result.Failed())
	assert.Equal(t, 0, sup.reloads, "reload must not run after a failed deploy")

	exists, err := afero.Exists(fsys, "units/partdb.container")
	require.NoError(t, err)
	assert.False(t, exists, "quadlets must not be installed after a render failure")
}

func TestUndeployRemovesInstalledQuadlets(t *testing.T) {
	sup := newFakeSupervisor()
	c, fsys := newTestController(t, sup)
	require.NoError(t, afero.WriteFile(fsys, "q/partdb.container", []byte("[Container]\n"), 0644))

	svc := &manifest.Service{
		Name:     "partdb",
		Quadlets: []string{"q/partdb.container"},
		Stop:     []string{"partdb.service"},
	}
	require.False(t, c.Deploy(context.Background(), svc).Failed())

	result := c.Undeploy(context.Background(), svc)
	require.False(t, result.Failed(), "undeploy: %+v", result)
	assert.Contains(t, sup.calls, "stop partdb.service")

	exists, err := afero.Exists(fsys, "units/partdb.container")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStatus(t *testing.T) {
	sup := newFakeSupervisor()
	sup.active["partdb.service"] = true
	c, _ := newTestController(t, sup)

	svc := &manifest.Service{Name: "partdb", Start: []string{"partdb.service"}}
	status := c.Status(context.Background(), svc, true)
	assert.True(t, status.Deployed)
	assert.True(t, status.Running)

	status = c.Status(context.Background(), svc, false)
	assert.False(t, status.Deployed)
	assert.False(t, status.Running)

	sup.active["partdb.service"] = false
	status = c.Status(context.Background(), svc, true)
	assert.True(t, status.Deployed)
	assert.False(t, status.Running)
}
