// Package secret renders secret-file templates from the secret store.
// Templates live next to their destination as <dest>.tmpl and reference
// secrets by dotted path, e.g. {{ .services.partdb.mysql.user_password }}.
//
// Rendering is atomic: output is written to a temporary sibling and renamed
// into place, so the destination is always either the previous complete file
// or the new complete file, never a partially written one. Secret values are
// never logged or included in errors; only template and placeholder names
// are.
package secret

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"text/template"

	"github.com/awm/vaire-cfg/pkg/manifest"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// TemplateSuffix is appended to a destination path to locate its template.
const TemplateSuffix = ".tmpl"

// secretFileMode keeps rendered files owner-only, matching the secret store
// requirement.
const secretFileMode fs.FileMode = 0600

var ErrRender = errors.New("unable to render secret file")

type Renderer struct {
	fsys  afero.Fs
	log   *zap.Logger
	store *manifest.SecretStore
}

func NewRenderer(fsys afero.Fs, log *zap.Logger, store *manifest.SecretStore) *Renderer {
	return &Renderer{
		fsys:  fsys,
		log:   log.With(zap.String("component", "secret")),
		store: store,
	}
}

// Render produces dest from dest.tmpl. Substitution is total: any
// placeholder that does not resolve to a secret store entry fails the render
// before anything is written. Re-rendering with an unchanged store is
// byte-identical and leaves an already up-to-date destination untouched.
func (r *Renderer) Render(dest string) error {
	templatePath := dest + TemplateSuffix
	raw, err := afero.ReadFile(r.fsys, templatePath)
	if err != nil {
		return fmt.Errorf("%w: reading template %q: %w", ErrRender, templatePath, err)
	}

	tmpl, err := template.New(filepath.Base(templatePath)).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return fmt.Errorf("%w: parsing template %q: %w", ErrRender, templatePath, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, r.store.Tree()); err != nil {
		// Template errors identify the failing placeholder by name, not by
		// value, so they are safe to propagate.
		return fmt.Errorf("%w: template %q: %w", ErrRender, templatePath, err)
	}

	if current, err := afero.ReadFile(r.fsys, dest); err == nil && bytes.Equal(current, buf.Bytes()) {
		if info, err := r.fsys.Stat(dest); err == nil && info.Mode().Perm() == secretFileMode {
			r.log.Debug("secret file already up to date", zap.String("path", dest))
			return nil
		}
	}

	if err := r.writeAtomic(dest, buf.Bytes()); err != nil {
		return fmt.Errorf("%w: writing %q: %w", ErrRender, dest, err)
	}
	r.log.Info("rendered secret file", zap.String("path", dest))
	return nil
}

// RenderAll renders every secret file a service declares, stopping at the
// first failure so a service is never deployed with a partial secret set.
func (r *Renderer) RenderAll(svc *manifest.Service) error {
	for _, dest := range svc.SecretFiles {
		if err := r.Render(dest); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) writeAtomic(dest string, content []byte) error {
	dir := filepath.Dir(dest)
	tmp, err := afero.TempFile(r.fsys, dir, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer r.fsys.Remove(tmpName)

	if err := r.fsys.Chmod(tmpName, secretFileMode); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return r.fsys.Rename(tmpName, dest)
}
