package backup

import "errors"

var (
	// ErrBackupKey means the encryption key reference could not be resolved
	// to a usable AES-256 key.
	ErrBackupKey = errors.New("unable to resolve backup encryption key")
	// ErrUpload wraps per-artifact upload failures.
	ErrUpload = errors.New("unable to upload artifact")
	// ErrPrune wraps per-target retention failures.
	ErrPrune = errors.New("unable to prune artifact")
	// ErrFetch wraps failures downloading or decrypting a remote object.
	ErrFetch = errors.New("unable to fetch object")
	// ErrObjectNotFound is returned by ObjectStore.Get for missing keys.
	ErrObjectNotFound = errors.New("object not found")
	// ErrNameCollision means two artifacts in the same run share a base name
	// and would overwrite each other in the object store.
	ErrNameCollision = errors.New("conflicting artifact names")
)
