package resolve

import (
	"testing"

	"github.com/awm/vaire-cfg/pkg/manifest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestManifest(t *testing.T) *manifest.Manifest {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for _, f := range []string{"q/traefik.container", "q/partdb.container", "q/partdb-db.container"} {
		require.NoError(t, afero.WriteFile(fsys, f, []byte("[Container]\n"), 0644))
	}
	doc := `
services:
  traefik:
    quadlets: [q/traefik.container]
    start: [traefik.service]
    stop: [traefik.service]
  partdb:
    quadlets: [q/partdb.container, q/partdb-db.container]
    start: [partdb-db.service, partdb.service]
    stop: [partdb.service, partdb-db.service]
`
	require.NoError(t, afero.WriteFile(fsys, "services.yml", []byte(doc), 0644))
	require.NoError(t, afero.WriteFile(fsys, "secrets.yml", []byte("secrets: {a: b}"), 0600))
	m, _, err := manifest.Load(fsys, "services.yml", "secrets.yml")
	require.NoError(t, err)
	return m
}

func TestOrderUpPreservesDeclaredStartOrder(t *testing.T) {
	m := loadTestManifest(t)
	ordered, err := Order(m, []string{"partdb"}, Up)
	require.NoError(t, err)
	require.Len(t, ordered, 1)
	assert.Equal(t, []string{"partdb-db.service", "partdb.service"}, ordered[0].Units)
}

func TestOrderDownIsDeclaredNotReversed(t *testing.T) {
	m := loadTestManifest(t)
	ordered, err := Order(m, []string{"partdb"}, Down)
	require.NoError(t, err)
	require.Len(t, ordered, 1)
	assert.Equal(t, []string{"partdb.service", "partdb-db.service"}, ordered[0].Units)
}

func TestOrderFollowsManifestServiceOrder(t *testing.T) {
	m := loadTestManifest(t)
	ordered, err := Order(m, []string{"partdb", "traefik"}, Up)
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	assert.Equal(t, "traefik", ordered[0].Service.Name)
	assert.Equal(t, "partdb", ordered[1].Service.Name)
}

func TestOrderRejectsUnknownService(t *testing.T) {
	m := loadTestManifest(t)
	_, err := Order(m, []string{"ghost"}, Up)
	assert.ErrorIs(t, err, manifest.ErrUnknownService)
}
