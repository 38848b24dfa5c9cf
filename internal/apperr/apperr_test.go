package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	err := fmt.Errorf("loading ledger: %w", NotFound("ledger %s not found", "abc"))
	assert.Equal(t, CodeNotFound, CodeOf(err))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
}

func TestFromKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	e := From(cause)
	assert.Equal(t, CodeInternal, e.Code)
	assert.ErrorIs(t, e, cause)
	assert.Equal(t, "internal server error", e.Message)

	forbidden := Forbidden("no access")
	assert.Same(t, forbidden, From(fmt.Errorf("wrapped: %w", forbidden)))
}

func TestRetryable(t *testing.T) {
	for _, code := range []Code{CodeClientClosedRequest, CodeConflict, CodeInternal, CodeTimeout, CodeTooManyRequests} {
		assert.True(t, Retryable(code), code)
	}
	for _, code := range []Code{CodeUnauthenticated, CodeForbidden, CodeNotFound, CodeBadRequest} {
		assert.False(t, Retryable(code), code)
	}
}

func TestStatusRoundTrip(t *testing.T) {
	for _, code := range []Code{CodeUnauthenticated, CodeForbidden, CodeNotFound, CodeBadRequest, CodeConflict, CodeInternal, CodeTooManyRequests} {
		assert.Equal(t, code, CodeFromStatus(code.HTTPStatus()))
	}
	assert.Equal(t, http.StatusUnauthorized, CodeUnauthenticated.HTTPStatus())
	assert.Equal(t, CodeTimeout, CodeFromStatus(http.StatusGatewayTimeout))
}
