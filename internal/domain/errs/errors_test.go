package errs

import (
	"context"
	"errors"
	"fmt"
	"github.com/stretchr/testify/assert"
	"testing"
)

func Test_IsTransient_OnlyTimeouts(t *testing.T) {
	timeout := &ConnectorError{Source: "hh", Err: fmt.Errorf("get page: %w", context.DeadlineExceeded)}
	refused := &ConnectorError{Source: "adzuna", Err: errors.New("status 500")}

	assert.True(t, IsTransient([]error{timeout}))
	assert.False(t, IsTransient([]error{timeout, refused}))
	assert.False(t, IsTransient([]error{ErrRateLimited}))
	assert.False(t, IsTransient(nil))
}

func Test_ConnectorError_Unwraps(t *testing.T) {
	err := fmt.Errorf("task: %w", &ConnectorError{Source: "hh", Err: ErrCircuitOpen})

	var connErr *ConnectorError
	assert.True(t, errors.As(err, &connErr))
	assert.Equal(t, "hh", connErr.Source)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}
