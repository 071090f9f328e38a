// pkg/errors/errors_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: None
// PURPOSE: Test error creation, wrapping, and code inspection helpers

package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/strata-build/strata/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    errors.ErrorCode
		message string
		wantStr string
	}{
		{
			name:    "unsatisfied_requirement",
			code:    errors.ErrUnsatisfiedRequirement,
			message: "no item provides /usr/bin",
			wantStr: "[UNSATISFIED_REQUIREMENT] no item provides /usr/bin",
		},
		{
			name:    "conflicting_provision",
			code:    errors.ErrConflictingProvision,
			message: "two items provide /etc/passwd",
			wantStr: "[CONFLICTING_PROVISION] two items provide /etc/passwd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := errors.New(tt.code, tt.message)
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.message, err.Message)
			assert.NotNil(t, err.Details)
			assert.Equal(t, tt.wantStr, err.Error())
		})
	}
}

func TestWrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := errors.Wrap(cause, errors.ErrItemApply, "install_file failed")

	require.NotNil(t, err)
	assert.Equal(t, "[ITEM_APPLY] install_file failed: disk full", err.Error())
	assert.True(t, stderrors.Is(err, cause))

	assert.Nil(t, errors.Wrap(nil, errors.ErrItemApply, "ignored"))
}

func TestIsErrorCode(t *testing.T) {
	err := errors.Newf(errors.ErrDependencyCycle, "cycle: %v", []string{"a", "b"})
	wrapped := errors.Wrap(err, errors.ErrInternal, "graph build failed")

	assert.True(t, errors.IsErrorCode(err, errors.ErrDependencyCycle))
	assert.False(t, errors.IsErrorCode(err, errors.ErrConflictingProvision))

	// The inner code stays reachable through the chain.
	assert.Equal(t, errors.ErrInternal, errors.GetErrorCode(wrapped))
	assert.True(t, stderrors.Is(wrapped, err))

	assert.Equal(t, errors.ErrUnknown, errors.GetErrorCode(stderrors.New("plain")))
}

func TestWithDetail(t *testing.T) {
	err := errors.New(errors.ErrUnsatisfiedRequirement, "missing predicate").
		WithDetail("item", "install_file:/a/f").
		WithDetail("predicate", "directory:/a")

	details := errors.GetErrorDetails(err)
	require.NotNil(t, details)
	assert.Equal(t, "install_file:/a/f", details["item"])
	assert.Equal(t, "directory:/a", details["predicate"])
}
