package manifest

import (
	"errors"
	"fmt"
)

var (
	ErrLoadingManifest    = errors.New("unable to load manifest from disk")
	ErrLoadingSecrets     = errors.New("unable to load secret store from disk")
	ErrSecretPermissions  = errors.New("secret store must only be accessible by its owner")
	ErrUnknownService     = errors.New("service is not declared in the manifest")
	ErrSecretKeyNotFound  = errors.New("secret key not found")
	ErrSecretKeyNotScalar = errors.New("secret key does not reference a scalar value")
)

// ValidationError identifies the service and field that failed manifest
// validation so problems can be reported precisely instead of as a generic
// parse error.
type ValidationError struct {
	Service string
	Field   string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Service == "" {
		return fmt.Sprintf("manifest: %s: %s", e.Field, e.Err)
	}
	return fmt.Sprintf("manifest: service %q: %s: %s", e.Service, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
