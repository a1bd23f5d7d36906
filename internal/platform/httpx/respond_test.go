package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := map[error]int{
		ErrNotFound:                            http.StatusNotFound,
		fmt.Errorf("campo: %w", ErrValidation): http.StatusBadRequest,
		ErrForbidden:                           http.StatusForbidden,
		ErrUnauthorized:                        http.StatusUnauthorized,
		fmt.Errorf("boom"):                     http.StatusInternalServerError,
	}
	for err, status := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, err)
		assert.Equal(t, status, rr.Code, err.Error())
		assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, status, body.Status)
	}
}
