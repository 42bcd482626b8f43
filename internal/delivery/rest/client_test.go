package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPostJSONSendsBodyAndHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/send", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "Basic secret", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "hello", body["message"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"abc"}`))
	}))
	defer server.Close()

	client := New(server.URL+"/", nil)
	headers := http.Header{}
	headers.Set("Authorization", "Basic secret")

	resp, err := client.PostJSON(context.Background(), "/v1/send", headers, map[string]string{"message": "hello"})
	require.NoError(t, err)
	require.True(t, resp.OK())

	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, resp.Decode(&out))
	require.Equal(t, "abc", out.ID)
}

func TestPostJSONReturnsErrorStatusesAsResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	resp, err := New(server.URL, server.Client()).PostJSON(context.Background(), "/", nil, struct{}{})
	require.NoError(t, err)
	require.False(t, resp.OK())
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NoError(t, resp.Decode(&struct{}{}))
}

func TestPostJSONFailsWhenServerUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := New(url, nil).PostJSON(context.Background(), "/", nil, struct{}{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "rest: send request")
}
