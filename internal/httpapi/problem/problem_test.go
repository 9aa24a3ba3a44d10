package problem

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteToSetsContentTypeAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	New(404).WithTitle("File not found").WithDetail("gone").WriteTo(rec)

	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	require.Equal(t, 404, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "File not found", body["title"])
	require.Equal(t, "gone", body["detail"])
	require.Equal(t, float64(404), body["status"])
}

func TestWriteToOmitsEmptyOptionalFields(t *testing.T) {
	rec := httptest.NewRecorder()
	New(500).WithTitle("boom").WriteTo(rec)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	_, hasDetail := body["detail"]
	_, hasInstance := body["instance"]
	_, hasType := body["type"]
	require.False(t, hasDetail)
	require.False(t, hasInstance)
	require.False(t, hasType)
}

func TestWithValueAddsExtensionMembers(t *testing.T) {
	rec := httptest.NewRecorder()
	New(404).WithTitle("not found").WithValue("id", "abc123").WriteTo(rec)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "abc123", body["id"])
}
