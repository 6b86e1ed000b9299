package lifecycle

import (
	"bytes"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// installQuadlet copies a quadlet file into the unit directory. Files whose
// installed content already matches are left untouched so repeated deploys
// do not dirty mtimes or trigger spurious unit regeneration on reload.
func (c *Controller) installQuadlet(src string) StepResult {
	content, err := afero.ReadFile(c.fsys, src)
	if err != nil {
		return StepResult{Target: src, Status: StepFailed, Err: err}
	}

	dest := filepath.Join(c.unitDir, filepath.Base(src))
	if current, err := afero.ReadFile(c.fsys, dest); err == nil && bytes.Equal(current, content) {
		c.log.Debug("quadlet unchanged", zap.String("path", dest))
		return StepResult{Target: dest, Status: StepUnchanged}
	}

	if err := c.fsys.MkdirAll(c.unitDir, 0755); err != nil {
		return StepResult{Target: dest, Status: StepFailed, Err: err}
	}
	if err := c.writeAtomic(dest, content); err != nil {
		return StepResult{Target: dest, Status: StepFailed, Err: err}
	}
	c.log.Info("installed quadlet", zap.String("path", dest))
	return StepResult{Target: dest, Status: StepOK}
}

// writeAtomic replaces dest via a temporary sibling and rename so the
// supervisor never observes a partially written unit file.
func (c *Controller) writeAtomic(dest string, content []byte) error {
	tmp, err := afero.TempFile(c.fsys, filepath.Dir(dest), "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer c.fsys.Remove(tmpName)

	if err := c.fsys.Chmod(tmpName, 0644); err != nil {
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
	return c.fsys.Rename(tmpName, dest)
}
