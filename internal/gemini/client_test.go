package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grievance/internal/api"
	apperrors "grievance/internal/errors"
	"grievance/internal/logging"
)

func replyWith(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []interface{}{
				map[string]interface{}{
					"content": map[string]interface{}{
						"parts": []interface{}{map[string]string{"text": text}},
					},
				},
			},
		})
	}
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient("test-key", "gemini-2.5-flash", api.NewHTTPClient(time.Second), logging.NewNop()).WithBaseURL(srv.URL)
}

func TestClassifyImageSendsInlineData(t *testing.T) {
	var got generateRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		replyWith("  VALID \n")(w, r)
	}))

	verdict, err := c.ClassifyImage(context.Background(), []byte("jpegbytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "VALID", verdict)

	require.Len(t, got.Contents, 1)
	require.Len(t, got.Contents[0].Parts, 2)
	assert.Contains(t, got.Contents[0].Parts[0].Text, "government grievance portal")
	assert.Equal(t, "image/png", got.Contents[0].Parts[1].InlineData.MimeType)
	assert.Equal(t, "anBlZ2J5dGVz", got.Contents[0].Parts[1].InlineData.Data)
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"rate limited", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTooManyRequests) }},
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"api error body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"bad key"}}`))
		}},
		{"no candidates", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"candidates":[]}`)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			_, err := c.ClassifyImage(context.Background(), []byte("x"), "")
			require.Error(t, err)
			assert.True(t, apperrors.IsCollaborator(err))
		})
	}
}

func TestNilClientIsCollaboratorError(t *testing.T) {
	c := NewClient("", "m", nil, logging.NewNop())
	assert.Nil(t, c)

	_, err := c.ClassifyImage(context.Background(), nil, "")
	assert.True(t, apperrors.IsCollaborator(err))
	_, err = c.Extract(context.Background(), "text")
	assert.True(t, apperrors.IsCollaborator(err))
}

func TestExtract(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, strings.Contains(req.Contents[0].Parts[0].Text, "garbage near gate 4"))
		replyWith("```json\n{\"name\":\"Asha\",\"phone\":\"9876543210\",\"type\":\"Garbage\",\"loc\":\"Gate 4\",\"desc\":\"Pile up\"}\n```")(w, r)
	}))

	e, err := c.Extract(context.Background(), "There is garbage near gate 4")
	require.NoError(t, err)
	assert.Equal(t, Extraction{Name: "Asha", Phone: "9876543210", Type: "Garbage", Loc: "Gate 4", Desc: "Pile up"}, e)
}

func TestParseExtraction(t *testing.T) {
	_, err := ParseExtraction("Sure! Here is the JSON you asked for")
	require.Error(t, err)
	assert.True(t, apperrors.IsMalformedExtraction(err))

	e, err := ParseExtraction(`{"name":"R","type":"Pothole"}`)
	require.NoError(t, err)
	assert.Equal(t, "Pothole", e.Type)
	assert.Empty(t, e.Phone)
}

func TestRateLimitHonorsContext(t *testing.T) {
	calls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		replyWith("VALID")(w, r)
	})).WithRateLimit(1)

	_, err := c.ClassifyImage(context.Background(), []byte("x"), "image/jpeg")
	require.NoError(t, err)

	// the second request would wait a minute for a token
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.ClassifyImage(ctx, []byte("x"), "image/jpeg")
	assert.True(t, apperrors.IsCollaborator(err))
	assert.Equal(t, 1, calls)
}
