// Package backup collects each service's artifacts by glob, encrypts them
// client-side, uploads them to a remote object store, and applies an age
// based retention policy independently on the local and remote tier.
// Plaintext never leaves the host.
package backup

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	doublestar "github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/awm/vaire-cfg/pkg/manifest"
)

// objectTimeFormat is embedded in object keys so retention can be applied
// by name alone, without trusting remote metadata.
const objectTimeFormat = "20060102T150405Z"

// Options configure a Pipeline beyond its collaborators.
type Options struct {
	// Key is the AES-256 artifact encryption key.
	Key []byte
	// Prefix is prepended to every object key, before the service name.
	Prefix string
	// Retention is the age threshold beyond which artifacts are deleted on
	// both tiers. Zero disables pruning.
	Retention time.Duration
	// Filter optionally narrows the artifact set. Nil keeps everything.
	Filter ArtifactFilter
	// NumWorkers bounds concurrent service runs in RunAll.
	NumWorkers int
}

// Pipeline runs backups for one service at a time. Instances are safe for
// concurrent Run calls because runs share no mutable state.
type Pipeline struct {
	fsys  afero.Fs
	log   *zap.Logger
	store ObjectStore
	opts  Options
	// now is replaceable for retention tests.
	now func() time.Time
}

func NewPipeline(fsys afero.Fs, log *zap.Logger, store ObjectStore, opts Options) *Pipeline {
	if opts.NumWorkers < 1 {
		opts.NumWorkers = 1
	}
	return &Pipeline{
		fsys:  fsys,
		log:   log.With(zap.String("component", "backup")),
		store: store,
		opts:  opts,
		now:   time.Now,
	}
}

// Run backs up one service: enumerate, encrypt, upload, then prune both
// tiers. Upload failures are isolated per artifact, but a failed artifact is
// excluded from pruning eligibility on both tiers. Cancellation mid-run
// marks the remaining artifacts failed and skips retention entirely.
func (p *Pipeline) Run(ctx context.Context, svc *manifest.Service) Report {
	report := Report{Service: svc.Name, RunID: uuid.New().String()}
	log := p.log.With(zap.String("service", svc.Name), zap.String("runID", report.RunID))

	artifacts, err := p.enumerate(svc)
	if err != nil {
		report.Err = err
		return report
	}
	if len(artifacts) == 0 {
		log.Info("no artifacts matched backup patterns")
		return report
	}

	started := p.now().UTC()
	failed := make(map[string]struct{})
	for _, art := range artifacts {
		outcome := ArtifactOutcome{
			Path:   art.Path,
			Object: p.objectKey(svc.Name, art.Name, started),
			Size:   art.Size,
		}
		if err := ctx.Err(); err != nil {
			outcome.Err = fmt.Errorf("%w: %s: %w", ErrUpload, art.Path, err)
		} else {
			outcome.Err = p.upload(ctx, art, outcome.Object)
		}
		if outcome.Err != nil {
			failed[art.Name] = struct{}{}
			log.Error("artifact upload failed", zap.String("path", art.Path), zap.Error(outcome.Err))
		} else {
			outcome.Uploaded = true
			log.Info("artifact uploaded", zap.String("path", art.Path), zap.String("object", outcome.Object))
		}
		report.Artifacts = append(report.Artifacts, outcome)
	}

	if err := ctx.Err(); err != nil {
		report.Err = err
		return report
	}
	if p.opts.Retention <= 0 {
		return report
	}

	report.Pruned = append(report.Pruned, p.pruneLocal(artifacts, failed)...)
	report.Pruned = append(report.Pruned, p.pruneRemote(ctx, svc.Name, failed)...)
	return report
}

// RunAll backs up the given services with at most NumWorkers running at
// once. Each service gets its own report slot so runs never share an
// accumulator.
func (p *Pipeline) RunAll(ctx context.Context, services []*manifest.Service) []Report {
	reports := make([]Report, len(services))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.NumWorkers)
	for i, svc := range services {
		g.Go(func() error {
			reports[i] = p.Run(ctx, svc)
			return nil
		})
	}
	g.Wait()
	return reports
}

// Fetch downloads one object, decrypts it, and writes the plaintext into
// destDir under the object's base name without the encrypted suffix. The
// written path is returned.
func (p *Pipeline) Fetch(ctx context.Context, object, destDir string) (string, error) {
	body, err := p.store.Get(ctx, object)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrFetch, object, err)
	}
	defer body.Close()

	sealed, err := afero.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrFetch, object, err)
	}
	plaintext, err := Decrypt(p.opts.Key, sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrFetch, object, err)
	}

	dest := filepath.Join(destDir, strings.TrimSuffix(path.Base(object), EncryptedSuffix))
	if err := afero.WriteFile(p.fsys, dest, plaintext, 0600); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrFetch, object, err)
	}
	return dest, nil
}

// enumerate resolves the service's glob patterns into a deduplicated,
// sorted artifact list, honoring the configured filter. Only regular files
// are candidates. Relative patterns are resolved against the working
// directory. Two artifacts must never share a base name within one run
// because the object key is derived from it.
func (p *Pipeline) enumerate(svc *manifest.Service) ([]ArtifactInfo, error) {
	rooted := afero.NewIOFS(afero.NewBasePathFs(p.fsys, "/"))
	now := p.now()

	seen := make(map[string]struct{})
	var artifacts []ArtifactInfo
	for _, pattern := range svc.Backups {
		if !filepath.IsAbs(pattern) {
			wd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("unable to resolve relative backup pattern %q: %w", pattern, err)
			}
			pattern = filepath.Join(wd, pattern)
		}
		matches, err := doublestar.Glob(rooted, strings.TrimPrefix(pattern, "/"))
		if err != nil {
			return nil, fmt.Errorf("invalid backup pattern %q for service %q: %w", pattern, svc.Name, err)
		}
		for _, m := range matches {
			full := "/" + m
			if _, ok := seen[full]; ok {
				continue
			}
			seen[full] = struct{}{}

			info, err := p.fsys.Stat(full)
			if err != nil {
				return nil, fmt.Errorf("unable to stat artifact %s: %w", full, err)
			}
			if !info.Mode().IsRegular() {
				continue
			}
			art := ArtifactInfo{
				Name: filepath.Base(full),
				Path: full,
				Size: info.Size(),
				Age:  now.Sub(info.ModTime()),
			}
			if p.opts.Filter != nil {
				keep, err := p.opts.Filter(art)
				if err != nil {
					return nil, err
				}
				if !keep {
					continue
				}
			}
			artifacts = append(artifacts, art)
		}
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Path < artifacts[j].Path })

	byName := make(map[string]string, len(artifacts))
	for _, art := range artifacts {
		if prev, ok := byName[art.Name]; ok {
			return nil, fmt.Errorf("%w: %s and %s for service %q would both upload as %q",
				ErrNameCollision, prev, art.Path, svc.Name, art.Name)
		}
		byName[art.Name] = art.Path
	}
	return artifacts, nil
}

func (p *Pipeline) upload(ctx context.Context, art ArtifactInfo, object string) error {
	plaintext, err := afero.ReadFile(p.fsys, art.Path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUpload, art.Path, err)
	}
	sealed, err := Encrypt(p.opts.Key, plaintext)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUpload, art.Path, err)
	}
	if err := p.store.Put(ctx, object, bytes.NewReader(sealed), int64(len(sealed))); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUpload, art.Path, err)
	}
	return nil
}

// pruneLocal deletes enumerated artifacts older than the retention
// threshold. Artifacts whose upload failed this run stay untouched.
func (p *Pipeline) pruneLocal(artifacts []ArtifactInfo, failed map[string]struct{}) []PruneOutcome {
	var outcomes []PruneOutcome
	for _, art := range artifacts {
		if art.Age <= p.opts.Retention {
			continue
		}
		if _, ok := failed[art.Name]; ok {
			continue
		}
		outcome := PruneOutcome{Tier: "local", Target: art.Path}
		if err := p.fsys.Remove(art.Path); err != nil {
			outcome.Err = fmt.Errorf("%w: %s: %w", ErrPrune, art.Path, err)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// pruneRemote deletes objects under the service prefix whose embedded
// timestamp is older than the retention threshold. Keys that do not parse
// are skipped, never deleted; objects for artifacts that failed to upload
// this run are likewise left alone.
func (p *Pipeline) pruneRemote(ctx context.Context, service string, failed map[string]struct{}) []PruneOutcome {
	prefix := path.Join(p.opts.Prefix, service) + "/"
	objects, err := p.store.List(ctx, prefix)
	if err != nil {
		return []PruneOutcome{{Tier: "remote", Target: prefix, Err: fmt.Errorf("%w: %w", ErrPrune, err)}}
	}

	cutoff := p.now().Add(-p.opts.Retention)
	var outcomes []PruneOutcome
	for _, obj := range objects {
		base, ts, ok := parseObjectKey(obj.Key)
		if !ok {
			p.log.Warn("skipping object with unrecognized key layout", zap.String("key", obj.Key))
			continue
		}
		if _, failedBase := failed[base]; failedBase {
			continue
		}
		if !ts.Before(cutoff) {
			continue
		}
		outcome := PruneOutcome{Tier: "remote", Target: obj.Key}
		if err := p.store.Delete(ctx, obj.Key); err != nil {
			outcome.Err = fmt.Errorf("%w: %s: %w", ErrPrune, obj.Key, err)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// objectKey builds <prefix>/<service>/<base>.<timestamp>.enc.
func (p *Pipeline) objectKey(service, base string, ts time.Time) string {
	return path.Join(p.opts.Prefix, service, base+"."+ts.Format(objectTimeFormat)+EncryptedSuffix)
}

// parseObjectKey recovers the artifact base name and timestamp from a key
// produced by objectKey.
func parseObjectKey(key string) (base string, ts time.Time, ok bool) {
	name := path.Base(key)
	name, found := strings.CutSuffix(name, EncryptedSuffix)
	if !found {
		return "", time.Time{}, false
	}
	i := strings.LastIndexByte(name, '.')
	if i < 1 {
		return "", time.Time{}, false
	}
	base, stamp := name[:i], name[i+1:]
	ts, err := time.Parse(objectTimeFormat, stamp)
	if err != nil {
		return "", time.Time{}, false
	}
	return base, ts, true
}
