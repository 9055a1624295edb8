package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var body GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama3.1", body.Model)
		assert.False(t, body.Stream)
		assert.Equal(t, "be brief", body.System)

		_ = json.NewEncoder(w).Encode(GenerateResponse{ //nolint:errcheck
			Model:    "llama3.1",
			Response: "SUBTYPE: hippy",
			Done:     true,
		})
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL + "/"))
	resp, err := c.Generate(context.Background(), GenerateRequest{Model: "llama3.1", Prompt: "p", System: "be brief", Stream: true})
	require.NoError(t, err)
	assert.Equal(t, "SUBTYPE: hippy", resp.Response)
	assert.True(t, resp.Done)
}

func TestGenerate_ModelMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "model 'llama3.1' not found"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Generate(context.Background(), GenerateRequest{Model: "llama3.1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama: http 404")
}

func TestGenerate_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(WithBaseURL(url)).Generate(context.Background(), GenerateRequest{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama: send request")
}
