// Package util carries small helpers shared by the command tree.
package util

// ExitCode is the process exit status a command maps its outcome to.
type ExitCode int

const (
	Success ExitCode = iota
	// GeneralError is the default for any error without an explicit code.
	GeneralError
	// PartialSuccess means some units or artifacts succeeded and some
	// failed; the report printed before exiting has the details.
	PartialSuccess
)

// CtlError associates an error with a specific process exit code. Commands
// return it from RunE when a plain non-zero exit would lose information.
type CtlError struct {
	err  error
	code ExitCode
}

func NewCtlError(err error, code ExitCode) *CtlError {
	return &CtlError{err: err, code: code}
}

func (e *CtlError) Error() string {
	return e.err.Error()
}

func (e *CtlError) Unwrap() error {
	return e.err
}

func (e *CtlError) ExitCode() ExitCode {
	return e.code
}
