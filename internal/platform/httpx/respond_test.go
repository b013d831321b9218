package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONWritesBodyAndContentType(t *testing.T) {
	rec := httptest.NewRecorder()

	JSON(rec, http.StatusCreated, map[string]string{"code": "B-2026-01"})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"code":"B-2026-01"}`, rec.Body.String())
}

func TestProblemRendersRFC7807Body(t *testing.T) {
	rec := httptest.NewRecorder()

	Problem(rec, http.StatusConflict, "Capacity Exceeded", "training: batch capacity exceeded")

	require.Equal(t, http.StatusConflict, rec.Code)

	var body ProblemDetail
	require.NoError(t, DecodeJSON(httptest.NewRequest(http.MethodGet, "/", strings.NewReader(rec.Body.String())), &body))
	require.Equal(t, "Capacity Exceeded", body.Title)
	require.Equal(t, http.StatusConflict, body.Status)
	require.Equal(t, "training: batch capacity exceeded", body.Detail)
}

func TestDecodeJSONRejectsMalformedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))

	var target struct{ Name string }
	require.Error(t, DecodeJSON(req, &target))
}
