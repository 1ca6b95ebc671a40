package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grievance/internal/audit"
	"grievance/internal/complaint"
	"grievance/internal/config"
	"grievance/internal/evidence"
	"grievance/internal/grievance"
	"grievance/internal/health"
	"grievance/internal/logging"
	"grievance/internal/storage"
)

type fakeNotifier struct{ ids []string }

func (f *fakeNotifier) Notify(_ context.Context, c complaint.Complaint) { f.ids = append(f.ids, c.ID) }

type fakePhone struct {
	err     error
	scripts []string
	urls    []string
}

func (f *fakePhone) CallWithScript(_ context.Context, _, doc string) (string, error) {
	f.scripts = append(f.scripts, doc)
	return "CA-reject", f.err
}

func (f *fakePhone) CallWithURL(_ context.Context, _, u string) (string, error) {
	f.urls = append(f.urls, u)
	return "CA-audit", f.err
}

func (f *fakePhone) VoiceToken(identity string) (string, error) {
	return "jwt-for-" + identity, nil
}

type fakeAI struct {
	reply string
	err   error
}

func (f fakeAI) ClassifyImage(context.Context, []byte, string) (string, error) {
	return f.reply, f.err
}

type fakeOfficials struct{ photos int }

func (f *fakeOfficials) SendPhoto(context.Context, string, []byte) error {
	f.photos++
	return nil
}

type testEnv struct {
	router    *gin.Engine
	store     *storage.Memory
	notifier  *fakeNotifier
	phone     *fakePhone
	officials *fakeOfficials
	uploads   string
	ai        *fakeAI
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		store:     storage.NewMemory(),
		notifier:  &fakeNotifier{},
		phone:     &fakePhone{},
		officials: &fakeOfficials{},
		uploads:   t.TempDir(),
		ai:        &fakeAI{reply: "VALID"},
	}
	log := logging.NewNop()
	blobs, err := evidence.NewLocalStore(env.uploads, "https://civic.example.org")
	require.NoError(t, err)

	svc := grievance.NewService(env.store, nil, env.notifier, env.phone, "client:citizen", log)
	env.router = NewRouter(Deps{
		Service:     svc,
		Evidence:    evidence.NewGate(env.store, blobs, aiFunc{env.ai}, log),
		Audit:       audit.NewCorrelator(audit.NewMemoryRegistry(), env.phone, "https://civic.example.org", "client:citizen", log),
		Tokens:      env.phone,
		Officials:   env.officials,
		Monitor:     health.NewMonitor(false),
		Credentials: config.CredentialReport{AccountSID: "AC1234...7890"},
		UploadDir:   env.uploads,
		Log:         log,
	})
	return env
}

// aiFunc reads the current fake so tests can swap the verdict after setup.
type aiFunc struct{ ai *fakeAI }

func (a aiFunc) ClassifyImage(ctx context.Context, b []byte, m string) (string, error) {
	return a.ai.ClassifyImage(ctx, b, m)
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) postJSON(path string, body interface{}) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return e.do(req)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func uploadRequest(t *testing.T, fields map[string]string, withFile bool) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if withFile {
		fw, err := mw.CreateFormFile("photo", "Pothole.JPG")
		require.NoError(t, err)
		_, _ = fw.Write([]byte("\xff\xd8\xff\xe0fake jpeg"))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/upload-photo", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestCreateAndListComplaints(t *testing.T) {
	env := newEnv(t)

	w := env.postJSON("/api/new-complaint", map[string]interface{}{
		"type": "Pothole", "desc": "deep hole", "phone": "9876543210", "lat": 28.5, "long": 77.1,
	})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	id := body["id"].(string)
	assert.True(t, strings.HasPrefix(id, "SIGW-"))
	assert.Equal(t, []string{id}, env.notifier.ids)

	w = env.postJSON("/api/new-complaint", map[string]interface{}{"id": "SIGV-7", "source": "voice", "desc": "no water"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/complaints", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list []complaint.Complaint
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "SIGV-7", list[0].ID)
	assert.Equal(t, complaint.SourceVoice, list[0].Source)
	assert.Equal(t, complaint.Coord("28.5"), list[1].Lat)
	assert.Equal(t, complaint.DeptRoads, list[1].Dept)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestCreateAcceptsLooselyTypedPayload(t *testing.T) {
	env := newEnv(t)

	w := env.postJSON("/api/new-complaint", map[string]interface{}{
		"type": "Pothole", "phone": 9876543210, "id": 4521, "source": "voice", "extra": []int{1, 2},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "4521", decode(t, w)["id"])

	stored, ok := env.store.FindByID("4521")
	require.True(t, ok)
	assert.Equal(t, "9876543210", stored.Phone)
	assert.Equal(t, complaint.SourceVoice, stored.Source)
	assert.Equal(t, complaint.DeptRoads, stored.Dept)

	req := httptest.NewRequest(http.MethodPost, "/api/new-complaint", nil)
	req.Header.Set("Content-Type", "application/json")
	w = env.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, strings.HasPrefix(decode(t, w)["id"].(string), "SIGW-"))
}

func TestCreateRejectsMalformedJSON(t *testing.T) {
	env := newEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/new-complaint", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := env.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])
}

func TestUploadPhotoOutcomes(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, env.store.Insert(complaint.Complaint{ID: "SIGW-1", Status: complaint.StatusPending, Lat: "1", Long: "2"}))

	t.Run("accepted", func(t *testing.T) {
		env.ai.reply, env.ai.err = "VALID", nil
		w := env.do(uploadRequest(t, map[string]string{"id": "SIGW-1", "lat": "28.61", "long": "77.20"}, true))
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, false, body["spam"])
		u := body["url"].(string)
		assert.True(t, strings.HasPrefix(u, "https://civic.example.org/uploads/SIGW-1-"))
		assert.True(t, strings.HasSuffix(u, ".jpg"))

		_, err := os.Stat(filepath.Join(env.uploads, filepath.Base(u)))
		assert.NoError(t, err)
		got, _ := env.store.FindByID("SIGW-1")
		assert.Equal(t, complaint.Coord("28.61"), got.Lat)
	})

	t.Run("spam", func(t *testing.T) {
		env.ai.reply = "INVALID"
		w := env.do(uploadRequest(t, map[string]string{"id": "SIGW-1"}, true))
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, true, body["spam"])
	})

	t.Run("ai down", func(t *testing.T) {
		env.ai.reply, env.ai.err = "", errors.New("429")
		w := env.do(uploadRequest(t, map[string]string{"id": "SIGW-1"}, true))
		body := decode(t, w)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, evidence.WarningAICheckSkipped, body["warning"])
	})

	t.Run("unknown id", func(t *testing.T) {
		w := env.do(uploadRequest(t, map[string]string{"id": "NOPE"}, true))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("no file", func(t *testing.T) {
		w := env.do(uploadRequest(t, map[string]string{"id": "SIGW-1"}, false))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRejectComplaint(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, env.store.Insert(complaint.Complaint{ID: "SIGW-3", Status: complaint.StatusPending}))

	w := env.postJSON("/api/reject-complaint", map[string]string{"id": "SIGW-3", "reason": "Duplicate"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CA-reject", decode(t, w)["callSid"])
	got, _ := env.store.FindByID("SIGW-3")
	assert.Equal(t, complaint.StatusRejected, got.Status)

	w = env.postJSON("/api/reject-complaint", map[string]string{"id": "NOPE"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.postJSON("/api/reject-complaint", map[string]string{"reason": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuditRoundTrip(t *testing.T) {
	env := newEnv(t)

	w := env.postJSON("/api/audit-cluster", map[string]interface{}{"loc": "Rohini", "dept": "Delhi Jal Board", "count": 12})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CA-audit", decode(t, w)["callSid"])
	require.Len(t, env.phone.urls, 1)
	assert.Contains(t, env.phone.urls[0], "/api/ivr/prompt?")

	promptURL, err := url.Parse(env.phone.urls[0])
	require.NoError(t, err)
	w = env.do(httptest.NewRequest(http.MethodGet, promptURL.RequestURI(), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/xml")
	assert.Contains(t, w.Body.String(), "resolved 12 issues in Rohini")

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/audit-status/CA-audit", nil))
	assert.Equal(t, "pending", decode(t, w)["status"])

	form := url.Values{"CallSid": {"CA-audit"}, "Digits": {"1"}}
	req := httptest.NewRequest(http.MethodPost, "/api/ivr/result", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = env.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Hangup")

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/audit-status/CA-audit", nil))
	assert.Equal(t, "1", decode(t, w)["status"])

	w = env.postJSON("/api/ivr/result", map[string]string{"callId": "CA-other"})
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(httptest.NewRequest(http.MethodGet, "/api/audit-status/CA-other", nil))
	assert.Equal(t, audit.NoInput, decode(t, w)["status"])

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/audit-status/CA-unknown", nil))
	assert.Equal(t, "pending", decode(t, w)["status"])
}

func TestAuditCallFailure(t *testing.T) {
	env := newEnv(t)
	env.phone.err = errors.New("provider down")
	w := env.postJSON("/api/audit-cluster", map[string]interface{}{"loc": "x", "dept": "y", "count": "3"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])
}

func TestTokenAndDiagnostics(t *testing.T) {
	env := newEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/token", nil))
	body := decode(t, w)
	assert.Equal(t, "citizen", body["identity"])
	assert.Equal(t, "jwt-for-citizen", body["token"])

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/test-credentials", nil))
	assert.Equal(t, "AC1234...7890", decode(t, w)["accountSid"])
}

func TestSummaryEndpoints(t *testing.T) {
	env := newEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/complaints/summary.png", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, env.store.Insert(complaint.Complaint{ID: "SIGW-1", Status: complaint.StatusPending, Date: "2024-01-01"}))
	w = env.do(httptest.NewRequest(http.MethodGet, "/api/complaints/summary.png", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = env.do(httptest.NewRequest(http.MethodPost, "/api/complaints/summary/broadcast", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["pending"])
	assert.Equal(t, 1, env.officials.photos)
}

func TestOperationalEndpoints(t *testing.T) {
	env := newEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])

	w = env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "grievance_http_requests_total")

	req := httptest.NewRequest(http.MethodOptions, "/api/new-complaint", nil)
	req.Header.Set("Origin", "https://dashboard.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type, ngrok-skip-browser-warning")
	w = env.do(req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, strings.ToLower(w.Header().Get("Access-Control-Allow-Headers")), "ngrok-skip-browser-warning")

	req = httptest.NewRequest(http.MethodGet, "/api/complaints", nil)
	req.Header.Set("Origin", "https://dashboard.example.org")
	w = env.do(req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
