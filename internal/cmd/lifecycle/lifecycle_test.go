package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awm/vaire-cfg/internal/util"
)

func TestFailureErrorExitMapping(t *testing.T) {
	cause := errors.New("operation failed for 2 of 2 services")

	assert.NoError(t, failureError(0, 3, cause))

	partial := failureError(1, 3, cause)
	var ctlErr *util.CtlError
	require.ErrorAs(t, partial, &ctlErr)
	assert.Equal(t, util.PartialSuccess, ctlErr.ExitCode())

	// A total failure is a plain error so the process exits with the
	// general error code, not partial success.
	total := failureError(2, 2, cause)
	require.Error(t, total)
	assert.False(t, errors.As(total, &ctlErr))
	assert.Equal(t, cause, total)
}
