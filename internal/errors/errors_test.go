package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/victornm/olympiad/internal/errors"
)

func TestConvert(t *testing.T) {
	tests := map[string]struct {
		err        error
		wantCode   errors.Code
		wantStatus int
	}{
		"plain error becomes internal": {
			err:        stderrors.New("boom"),
			wantCode:   errors.CodeInternal,
			wantStatus: http.StatusInternalServerError,
		},
		"wrapped error keeps its code": {
			err:        fmt.Errorf("open: %w", errors.New(errors.CodeNotFound)),
			wantCode:   errors.CodeNotFound,
			wantStatus: http.StatusNotFound,
		},
		"unavailable maps to 503": {
			err:        errors.New(errors.CodeUnavailable),
			wantCode:   errors.CodeUnavailable,
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			e := errors.Convert(tt.err)
			assert.Equal(t, tt.wantCode, e.Code)
			assert.Equal(t, tt.wantStatus, e.HTTPStatusCode())
			assert.Equal(t, codes.Code(tt.wantCode), e.GRPCStatus().Code())
		})
	}
}

func TestHasReason(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := fmt.Errorf("submit: %w", errors.New(errors.CodeUnavailable,
		errors.WithReason(errors.ReasonSubmissionPersistFailed),
		errors.WithCause(cause),
	))

	require.True(t, errors.HasReason(err, errors.ReasonSubmissionPersistFailed))
	require.False(t, errors.HasReason(err, errors.ReasonNoQuestions))
	require.ErrorIs(t, err, cause)
	require.True(t, errors.Convert(err).Retryable())
}
