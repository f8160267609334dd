package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/domain"
)

func TestFromError_Mapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: company_name required", domain.ErrValidation), http.StatusBadRequest, "validation"},
		{fmt.Errorf("contact 9: %w", domain.ErrNotFound), http.StatusNotFound, "not_found"},
		{fmt.Errorf("%w: unresolved bundle", domain.ErrConflict), http.StatusConflict, "conflict"},
		{fmt.Errorf("%w: bounced", domain.ErrNotEligible), http.StatusConflict, "not_eligible"},
		{domain.ErrAlreadyIssued, http.StatusConflict, "already_issued"},
		{domain.ErrDuplicate, http.StatusOK, "duplicate"},
		{fmt.Errorf("smtp 421: %w", domain.ErrTransientSend), http.StatusServiceUnavailable, "transient_send"},
		{domain.ErrNoTemplate, http.StatusUnprocessableEntity, "no_template"},
		{errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		FromError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.code, body.Code)
	}
}

func TestFromError_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	FromError(rec, errors.New("pq: password authentication failed"))
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestDecode_RejectsBadJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	var dst map[string]any
	assert.False(t, Decode(rec, req, &dst))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
