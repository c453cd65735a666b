package apperror_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kevinaaaquil/library/backend/apperror"
)

func TestKindHTTPStatus(t *testing.T) {
	cases := map[apperror.Kind]int{
		apperror.KindNotFound:        http.StatusNotFound,
		apperror.KindPolicyViolation: http.StatusConflict,
		apperror.KindValidation:      http.StatusBadRequest,
		apperror.KindConflict:        http.StatusConflict,
		apperror.KindUnauthorized:    http.StatusUnauthorized,
		apperror.KindForbidden:       http.StatusForbidden,
		apperror.KindInternal:        http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, kind.HTTPStatus(), kind.String())
	}
}

func TestAs_WrapsUnknownErrorsAsInternal(t *testing.T) {
	cause := errors.New("connection refused")

	e := apperror.As(cause)

	assert.Equal(t, apperror.KindInternal, e.Kind)
	assert.Equal(t, "internal error", e.Message)
	assert.ErrorIs(t, e, cause)
}

func TestAs_FindsWrappedError(t *testing.T) {
	inner := apperror.Policy(apperror.CodeBookNotAvailable, "Book not available")
	wrapped := fmt.Errorf("borrow: %w", inner)

	assert.Same(t, inner, apperror.As(wrapped))
	assert.True(t, apperror.IsKind(wrapped, apperror.KindPolicyViolation))
	assert.True(t, apperror.HasCode(wrapped, apperror.CodeBookNotAvailable))
	assert.False(t, apperror.IsKind(nil, apperror.KindInternal))
}
