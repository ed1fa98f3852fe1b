package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func respond(t *testing.T, err error) (int, string) {
	t.Helper()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	Respond(c, err)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body["error"]
}

func TestRespondStatusCodes(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{Auth("who"), http.StatusUnauthorized},
		{Forbidden("no"), http.StatusForbidden},
		{NotFound("gone"), http.StatusNotFound},
		{Conflict("taken"), http.StatusConflict},
		{fmt.Errorf("wrapped: %w", Conflict("taken")), http.StatusConflict},
	}

	for _, tt := range tests {
		code, _ := respond(t, tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}

func TestRespondHidesInternalDetails(t *testing.T) {
	code, msg := respond(t, Internal("load booking", errors.New("pq: connection refused")))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Internal server error", msg)

	code, msg = respond(t, errors.New("raw driver failure"))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Internal server error", msg)
}

func TestSentinelMatching(t *testing.T) {
	errSeatTaken := Conflict("seat already booked")

	err := fmt.Errorf("create booking: %w", Conflict("seat already booked"))
	assert.ErrorIs(t, err, errSeatTaken)
	assert.NotErrorIs(t, err, Conflict("other"))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, KindInternal, KindOf(errors.New("x")))
}
