package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(in["hello"]))
	}))
	defer srv.Close()

	resp, err := PostJSON(context.Background(), NewHTTPClient(time.Second), srv.URL, map[string]string{"hello": "world"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "world", string(resp.Body))
}

func TestPostJSONTransportError(t *testing.T) {
	_, err := PostJSON(context.Background(), NewHTTPClient(time.Second), "http://127.0.0.1:1", map[string]int{})
	assert.Error(t, err)
}
