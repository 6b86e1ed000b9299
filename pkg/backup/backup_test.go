package backup

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/awm/vaire-cfg/pkg/manifest"
)

var testKey = bytes.Repeat([]byte{0xab}, 32)

// fakeStore is an in-memory ObjectStore that can reject puts by key
// substring.
type fakeStore struct {
	objects map[string][]byte
	failPut string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) Put(_ context.Context, key string, body io.Reader, _ int64) error {
	if f.failPut != "" && strings.Contains(key, f.failPut) {
		return errors.New("access denied")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for key, data := range f.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func testService(t *testing.T, patterns ...string) *manifest.Service {
	t.Helper()
	return &manifest.Service{Name: "partdb", Backups: patterns}
}

func newTestPipeline(store ObjectStore, opts Options) (*Pipeline, afero.Fs) {
	fsys := afero.NewMemMapFs()
	opts.Key = testKey
	if opts.Prefix == "" {
		opts.Prefix = "backups"
	}
	p := NewPipeline(fsys, zap.NewNop(), store, opts)
	return p, fsys
}

func writeAged(t *testing.T, fsys afero.Fs, path string, data []byte, age time.Duration, now time.Time) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, path, data, 0644))
	require.NoError(t, fsys.Chtimes(path, now.Add(-age), now.Add(-age)))
}

func TestRunZeroArtifactsSucceeds(t *testing.T) {
	store := newFakeStore()
	p, _ := newTestPipeline(store, Options{})

	report := p.Run(context.Background(), testService(t, "/srv/partdb/backups/*.zip"))
	assert.False(t, report.Failed())
	assert.Empty(t, report.Artifacts)
	assert.Empty(t, report.Pruned)
	assert.Empty(t, store.objects)
}

func TestRunUploadsEncrypted(t *testing.T) {
	store := newFakeStore()
	p, fsys := newTestPipeline(store, Options{})
	plaintext := []byte("database dump contents")
	require.NoError(t, afero.WriteFile(fsys, "/srv/partdb/backups/dump.zip", plaintext, 0644))

	report := p.Run(context.Background(), testService(t, "/srv/partdb/backups/*.zip"))
	require.False(t, report.Failed())
	require.Len(t, report.Artifacts, 1)
	art := report.Artifacts[0]
	assert.True(t, art.Uploaded)
	assert.Equal(t, int64(len(plaintext)), art.Size)
	assert.True(t, strings.HasPrefix(art.Object, "backups/partdb/dump.zip."))
	assert.True(t, strings.HasSuffix(art.Object, EncryptedSuffix))

	sealed, ok := store.objects[art.Object]
	require.True(t, ok)
	assert.NotContains(t, string(sealed), "database dump contents")
	recovered, err := Decrypt(testKey, sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, recovered)
}

func TestRunResolvesRelativePatterns(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	fsys := afero.NewOsFs()
	require.NoError(t, fsys.MkdirAll(filepath.Join(dir, "backups", "partdb"), 0755))
	require.NoError(t, afero.WriteFile(fsys, filepath.Join(dir, "backups", "partdb", "dump.zip"), []byte("dump"), 0644))

	store := newFakeStore()
	p := NewPipeline(fsys, zap.NewNop(), store, Options{Key: testKey, Prefix: "backups"})

	report := p.Run(context.Background(), testService(t, "backups/partdb/*.zip"))
	require.False(t, report.Failed(), "run: %+v", report)
	require.Len(t, report.Artifacts, 1, "relative pattern must match files under the working directory")
	assert.True(t, report.Artifacts[0].Uploaded)
	assert.Len(t, store.objects, 1)
}

func TestRunRejectsCollidingArtifactNames(t *testing.T) {
	store := newFakeStore()
	p, fsys := newTestPipeline(store, Options{})
	require.NoError(t, afero.WriteFile(fsys, "/srv/a/dump.zip", []byte("aaa"), 0644))
	require.NoError(t, afero.WriteFile(fsys, "/srv/b/dump.zip", []byte("bbb"), 0644))

	report := p.Run(context.Background(), testService(t, "/srv/*/dump.zip"))
	require.True(t, report.Failed())
	assert.ErrorIs(t, report.Err, ErrNameCollision)
	assert.Contains(t, report.Err.Error(), "/srv/a/dump.zip")
	assert.Contains(t, report.Err.Error(), "/srv/b/dump.zip")
	assert.Empty(t, report.Artifacts, "nothing may upload when object keys would collide")
	assert.Empty(t, store.objects)
}

func TestRunFailedUploadExcludedFromPruning(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.failPut = "b.zip"
	p, fsys := newTestPipeline(store, Options{Retention: 30 * 24 * time.Hour})
	p.now = func() time.Time { return now }

	age := 40 * 24 * time.Hour
	writeAged(t, fsys, "/srv/partdb/backups/a.zip", []byte("aaa"), age, now)
	writeAged(t, fsys, "/srv/partdb/backups/b.zip", []byte("bbb"), age, now)

	oldStamp := now.Add(-age).Format(objectTimeFormat)
	store.objects["backups/partdb/a.zip."+oldStamp+EncryptedSuffix] = []byte("old-a")
	store.objects["backups/partdb/b.zip."+oldStamp+EncryptedSuffix] = []byte("old-b")

	report := p.Run(context.Background(), testService(t, "/srv/partdb/backups/*.zip"))
	require.True(t, report.Failed())
	require.Len(t, report.Artifacts, 2)
	assert.True(t, report.Artifacts[0].Uploaded)
	assert.False(t, report.Artifacts[1].Uploaded)
	assert.ErrorIs(t, report.Artifacts[1].Err, ErrUpload)

	// a.zip aged out and backed up, so it is pruned on both tiers.
	exists, err := afero.Exists(fsys, "/srv/partdb/backups/a.zip")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NotContains(t, store.objects, "backups/partdb/a.zip."+oldStamp+EncryptedSuffix)

	// b.zip failed to upload this run and stays untouched on both tiers.
	exists, err = afero.Exists(fsys, "/srv/partdb/backups/b.zip")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Contains(t, store.objects, "backups/partdb/b.zip."+oldStamp+EncryptedSuffix)
}

func TestRunRetentionKeepsRecentArtifacts(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	p, fsys := newTestPipeline(store, Options{Retention: 30 * 24 * time.Hour})
	p.now = func() time.Time { return now }

	writeAged(t, fsys, "/srv/partdb/backups/fresh.zip", []byte("fff"), time.Hour, now)
	recentStamp := now.Add(-time.Hour).Format(objectTimeFormat)
	store.objects["backups/partdb/fresh.zip."+recentStamp+EncryptedSuffix] = []byte("recent")

	report := p.Run(context.Background(), testService(t, "/srv/partdb/backups/*.zip"))
	require.False(t, report.Failed())
	assert.Empty(t, report.Pruned)
	exists, err := afero.Exists(fsys, "/srv/partdb/backups/fresh.zip")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRunSkipsUnrecognizedRemoteKeys(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	p, fsys := newTestPipeline(store, Options{Retention: 24 * time.Hour})
	p.now = func() time.Time { return now }

	writeAged(t, fsys, "/srv/partdb/backups/a.zip", []byte("aaa"), time.Hour, now)
	store.objects["backups/partdb/manually-placed.bak"] = []byte("keep me")
	store.objects["backups/partdb/no-timestamp.enc"] = []byte("keep me too")

	report := p.Run(context.Background(), testService(t, "/srv/partdb/backups/*.zip"))
	require.False(t, report.Failed())
	assert.Contains(t, store.objects, "backups/partdb/manually-placed.bak")
	assert.Contains(t, store.objects, "backups/partdb/no-timestamp.enc")
}

func TestRunCancelledSkipsRetention(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	p, fsys := newTestPipeline(store, Options{Retention: 24 * time.Hour})
	p.now = func() time.Time { return now }

	writeAged(t, fsys, "/srv/partdb/backups/old.zip", []byte("ooo"), 48*time.Hour, now)
	oldStamp := now.Add(-48 * time.Hour).Format(objectTimeFormat)
	store.objects["backups/partdb/old.zip."+oldStamp+EncryptedSuffix] = []byte("stale")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := p.Run(ctx, testService(t, "/srv/partdb/backups/*.zip"))

	require.True(t, report.Failed())
	require.Len(t, report.Artifacts, 1)
	assert.ErrorIs(t, report.Artifacts[0].Err, ErrUpload)
	assert.Empty(t, report.Pruned, "retention must not run after cancellation")
	exists, err := afero.Exists(fsys, "/srv/partdb/backups/old.zip")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Contains(t, store.objects, "backups/partdb/old.zip."+oldStamp+EncryptedSuffix)
}

func TestRunAllIsolatesServices(t *testing.T) {
	store := newFakeStore()
	store.failPut = "alpha"
	p, fsys := newTestPipeline(store, Options{NumWorkers: 2})
	require.NoError(t, afero.WriteFile(fsys, "/srv/alpha/a.zip", []byte("a"), 0644))
	require.NoError(t, afero.WriteFile(fsys, "/srv/beta/b.zip", []byte("b"), 0644))

	reports := p.RunAll(context.Background(), []*manifest.Service{
		{Name: "alpha", Backups: []string{"/srv/alpha/*.zip"}},
		{Name: "beta", Backups: []string{"/srv/beta/*.zip"}},
	})
	require.Len(t, reports, 2)
	assert.Equal(t, "alpha", reports[0].Service)
	assert.True(t, reports[0].Failed())
	assert.Equal(t, "beta", reports[1].Service)
	assert.False(t, reports[1].Failed())
}

func TestFetchRoundTrip(t *testing.T) {
	store := newFakeStore()
	p, fsys := newTestPipeline(store, Options{})
	plaintext := []byte("restore me")
	sealed, err := Encrypt(testKey, plaintext)
	require.NoError(t, err)
	object := "backups/partdb/dump.zip.20260801T000000Z.enc"
	store.objects[object] = sealed

	dest, err := p.Fetch(context.Background(), object, "/tmp")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/dump.zip.20260801T000000Z", dest)
	got, err := afero.ReadFile(fsys, dest)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestFetchMissingObject(t *testing.T) {
	p, _ := newTestPipeline(newFakeStore(), Options{})
	_, err := p.Fetch(context.Background(), "backups/partdb/nope.enc", "/tmp")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestKeyFromSecret(t *testing.T) {
	fsys := afero.NewMemMapFs()
	goodKey := hex.EncodeToString(testKey)
	secrets := fmt.Sprintf("secrets:\n  apis:\n    aws:\n      backup_key: %s\n      short_key: abcd\n", goodKey)
	require.NoError(t, afero.WriteFile(fsys, "secrets.yml", []byte(secrets), 0600))
	_, store, err := loadStore(t, fsys)
	require.NoError(t, err)

	key, err := KeyFromSecret(store, "apis.aws.backup_key")
	require.NoError(t, err)
	assert.Equal(t, testKey, key)

	_, err = KeyFromSecret(store, "apis.aws.short_key")
	assert.ErrorIs(t, err, ErrBackupKey)

	_, err = KeyFromSecret(store, "apis.aws.missing")
	assert.ErrorIs(t, err, ErrBackupKey)
}

func loadStore(t *testing.T, fsys afero.Fs) (*manifest.Manifest, *manifest.SecretStore, error) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, "services.yml", []byte("services: {}"), 0644))
	return manifest.Load(fsys, "services.yml", "secrets.yml")
}

func TestParseObjectKey(t *testing.T) {
	tests := []struct {
		key  string
		base string
		ok   bool
	}{
		{"backups/partdb/dump.zip.20260801T000000Z.enc", "dump.zip", true},
		{"backups/partdb/dump.zip.20260801T000000Z", "", false},
		{"backups/partdb/dump.enc", "", false},
		{"backups/partdb/.20260801T000000Z.enc", "", false},
	}
	for _, tc := range tests {
		base, ts, ok := parseObjectKey(tc.key)
		assert.Equal(t, tc.ok, ok, tc.key)
		if tc.ok {
			assert.Equal(t, tc.base, base)
			assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), ts)
		}
	}
}

func TestCompileFilter(t *testing.T) {
	old := ArtifactInfo{Name: "dump.zip", Path: "/srv/partdb/backups/dump.zip", Size: 5 << 20, Age: 40 * 24 * time.Hour}
	fresh := ArtifactInfo{Name: "fresh.tar", Path: "/srv/partdb/backups/fresh.tar", Size: 100, Age: time.Hour}

	filter, err := CompileFilter("age < 30d")
	require.NoError(t, err)
	keep, err := filter(old)
	require.NoError(t, err)
	assert.False(t, keep)
	keep, err = filter(fresh)
	require.NoError(t, err)
	assert.True(t, keep)

	filter, err = CompileFilter("size > 1MiB and glob(name, '*.zip')")
	require.NoError(t, err)
	keep, err = filter(old)
	require.NoError(t, err)
	assert.True(t, keep)
	keep, err = filter(fresh)
	require.NoError(t, err)
	assert.False(t, keep)

	_, err = CompileFilter("name ==")
	assert.Error(t, err)

	filter, err = CompileFilter("size")
	require.NoError(t, err)
	_, err = filter(fresh)
	assert.Error(t, err, "non-boolean result must be rejected")
}
