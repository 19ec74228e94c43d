package problems

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, New("Conflict", "tenant changed concurrently", TypeConflict, http.StatusConflict))

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, ContentType, rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Conflict", body["title"])
	require.Equal(t, float64(http.StatusConflict), body["status"])
	require.Equal(t, TypeConflict, body["type"])
	require.Equal(t, "tenant changed concurrently", body["detail"])
	require.NotContains(t, body, "errors")
}

func TestNewOmitsEmptyFields(t *testing.T) {
	problem := New("Internal server error", "", "", http.StatusInternalServerError)
	require.Nil(t, problem.Detail)
	require.Nil(t, problem.Type)
}

func TestValidatorErrorHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	ValidatorErrorHandler(rec, "security requirements failed", http.StatusForbidden)

	require.Equal(t, http.StatusForbidden, rec.Code)
	var problem ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "Unauthorized", problem.Title)
	require.NotNil(t, problem.Type)
	require.Equal(t, TypeUnauthorized, *problem.Type)
}
