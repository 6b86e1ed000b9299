package backup

// ArtifactOutcome records one artifact's upload attempt.
type ArtifactOutcome struct {
	// Path is the local artifact path.
	Path string
	// Object is the remote key the artifact was (or would have been)
	// uploaded under.
	Object string
	// Size is the plaintext artifact size in bytes.
	Size     int64
	Uploaded bool
	Err      error
}

// PruneOutcome records one retention deletion attempt on either tier.
type PruneOutcome struct {
	// Tier is "local" or "remote".
	Tier string
	// Target is the local path or remote key that was deleted.
	Target string
	Err    error
}

// Report is the full result of one service's backup run. Zero artifacts is
// a valid, successful report.
type Report struct {
	Service   string
	RunID     string
	Artifacts []ArtifactOutcome
	Pruned    []PruneOutcome
	Err       error
}

// Failed reports whether any part of the run failed.
func (r *Report) Failed() bool {
	if r.Err != nil {
		return true
	}
	for _, a := range r.Artifacts {
		if a.Err != nil {
			return true
		}
	}
	for _, p := range r.Pruned {
		if p.Err != nil {
			return true
		}
	}
	return false
}
