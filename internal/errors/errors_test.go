package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"xelimit/domain/core"
)

func TestWrapKeepsCode(t *testing.T) {
	base := ConfigInvalid("bad model")
	err := Wrap(base, "loading")
	assert.Equal(t, CodeConfigInvalid, GetCode(err))
	assert.Equal(t, "loading: bad model", err.Error())
	assert.Nil(t, Wrap(nil, "ignored"))

	plain := Wrap(stderrors.New("disk full"), "saving")
	assert.Equal(t, CodeInternalError, GetCode(plain))
}

func TestGetCodeThroughFmtWrapping(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := fmt.Errorf("saving result: %w", DatabaseError("failed to save limit result", cause))

	assert.Equal(t, CodeDatabaseError, GetCode(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeInternalError, GetCode(cause))
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		code string
		msg  string
	}{
		{"database", DatabaseError("failed to list toy fits", stderrors.New("timeout")), CodeDatabaseError, "failed to list toy fits: timeout"},
		{"validation", ValidationError("model file", stderrors.New("Name is required")), CodeValidationError, "model file: Name is required"},
		{"not found", NotFound("limit result abc", core.ErrResultNotFound), CodeNotFound, "limit result abc not found: resource not found: limit result"},
		{"invalid input", InvalidInput("limit must be an integer"), CodeInvalidInput, "limit must be an integer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, GetCode(tt.err))
			assert.Equal(t, tt.msg, tt.err.Error())
		})
	}
	assert.ErrorIs(t, NotFound("x", core.ErrResultNotFound), core.ErrNotFound)
}

func TestWithCode(t *testing.T) {
	err := WithCode(CodeConfigInvalid, stderrors.New("yaml: line 3"))
	assert.Equal(t, CodeConfigInvalid, GetCode(err))
	assert.Equal(t, "yaml: line 3", err.(*AppError).Message)

	recoded := WithCode(CodeInvalidInput, ConfigInvalid("bad"))
	assert.Equal(t, CodeInvalidInput, GetCode(recoded))
	assert.Nil(t, WithCode(CodeNotFound, nil))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"missing template", core.NewTemplateNotFoundError("bkgLeff0.00"), CodeTemplateNotFound},
		{"configuration", fmt.Errorf("model m: %w", core.ErrNoBackground), CodeConfigInvalid},
		{"not found", core.ErrResultNotFound, CodeNotFound},
		{"fit", fmt.Errorf("model m: %w: simplex", core.ErrFitFailed), CodeFitFailed},
		{"already coded", DatabaseError("failed to get limit result", stderrors.New("eof")), CodeDatabaseError},
		{"other", stderrors.New("disk full"), CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.err, "run failed")
			assert.Equal(t, tt.code, GetCode(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
	assert.Nil(t, Classify(nil, "nothing"))
}
