package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"ragctx/internal/apperr"
)

func TestStatusForCode_MapsEveryTaxonomyMember(t *testing.T) {
	cases := map[apperr.Code]int{
		apperr.CodeValidation:       http.StatusBadRequest,
		apperr.CodeRateLimit:        http.StatusTooManyRequests,
		apperr.CodeUnauthorized:     http.StatusUnauthorized,
		apperr.CodeForbidden:        http.StatusForbidden,
		apperr.CodeNotFound:         http.StatusNotFound,
		apperr.CodeConflict:         http.StatusConflict,
		apperr.CodeTimeout:          http.StatusGatewayTimeout,
		apperr.CodeUpstreamError:    http.StatusBadGateway,
		apperr.CodeUpstreamDisabled: http.StatusServiceUnavailable,
		apperr.CodeInternal:         http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, statusForCode(code), "code=%s", code)
	}
}

func TestStatusForCode_UnknownDefaultsToInternal(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusForCode(apperr.Code("NOT_A_REAL_CODE")))
}
