package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/cvchat/internal/chat"
	"github.com/dgallion1/cvchat/internal/claude"
	"github.com/dgallion1/cvchat/internal/config"
	"github.com/dgallion1/cvchat/internal/pipeline"
	"github.com/dgallion1/cvchat/internal/store"
)

const testKey = "test-key"

const sampleCV = "JANE DOE\njane@example.com\n\nSKILLS\nPython\nJavaScript\n\nEXPERIENCE\nEngineer at Acme\n"

type testEnv struct {
	srv   *Server
	store store.Store
}

func newTestEnv(t *testing.T, llm *claude.Client) *testEnv {
	t.Helper()
	cfg := config.Defaults()
	cfg.APIKey = testKey
	cfg.WorkerCount = 1
	cfg.MaxBatchFiles = 3

	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "cv.db"))
	require.NoError(t, err)

	orch := pipeline.NewOrchestrator(cfg, st, nil)
	orch.Start(context.Background())
	t.Cleanup(func() {
		orch.Stop()
		st.Close()
	})

	svc := chat.NewService(st, store.NewLocks(), nil, chat.Options{}, nil)
	return &testEnv{srv: NewServer(orch, svc, llm, nil, cfg), store: st}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+testKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(t *testing.T, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if v != nil {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	return e.do(t, method, path, body, "application/json")
}

func (e *testEnv) seed(t *testing.T, userID, text string) string {
	t.Helper()
	doc := &store.Document{UserID: userID, Filename: "cv.txt", Title: "cv", Text: text}
	require.NoError(t, e.store.Create(context.Background(), doc))
	return doc.ID
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func multipartBody(t *testing.T, fields map[string]string, field string, files map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["llm"])
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cvs?user_id=u1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/cvs?user_id=u1", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func waitForJob(t *testing.T, env *testEnv, jobID string) pipeline.JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := env.do(t, http.MethodGet, "/api/ingest/"+jobID+"/status", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		snap := decode[pipeline.JobSnapshot](t, rec)
		if snap.Status.Terminal() {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", jobID)
	return pipeline.JobSnapshot{}
}

func TestUploadAndFetch(t *testing.T) {
	env := newTestEnv(t, nil)

	body, ct := multipartBody(t, map[string]string{"user_id": "u1"}, "file", map[string]string{"jane.txt": sampleCV})
	rec := env.do(t, http.MethodPost, "/api/cvs", body, ct)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	accepted := decode[map[string]any](t, rec)
	jobID, _ := accepted["job_id"].(string)
	require.NotEmpty(t, jobID)

	snap := waitForJob(t, env, jobID)
	require.Equal(t, pipeline.StatusCompleted, snap.Status, "errors: %v", snap.Progress.Errors)
	assert.Equal(t, []string{"skills", "experience"}, snap.Progress.Sections)

	rec = env.do(t, http.MethodGet, "/api/cvs/"+snap.DocID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[store.Document](t, rec)
	assert.Equal(t, sampleCV, doc.Text)
	assert.Equal(t, "jane", doc.Title)

	rec = env.do(t, http.MethodGet, "/api/cvs/"+snap.DocID+"?format=text", nil, "")
	assert.Equal(t, sampleCV, rec.Body.String())
	assert.Equal(t, `"1"`, rec.Header().Get("ETag"))

	rec = env.do(t, http.MethodGet, "/api/cvs?user_id=u1", nil, "")
	list := decode[map[string][]store.Document](t, rec)
	require.Len(t, list["documents"], 1)
	assert.Empty(t, list["documents"][0].Text)

	// Same content again is a duplicate of the first upload.
	body, ct = multipartBody(t, map[string]string{"user_id": "u1"}, "file", map[string]string{"copy.txt": sampleCV})
	rec = env.do(t, http.MethodPost, "/api/cvs", body, ct)
	require.Equal(t, http.StatusAccepted, rec.Code)
	dup := waitForJob(t, env, decode[map[string]any](t, rec)["job_id"].(string))
	assert.Equal(t, pipeline.StatusDupSkipped, dup.Status)
	assert.Equal(t, snap.DocID, dup.DocID)
}

func TestUploadValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	body, ct := multipartBody(t, nil, "file", map[string]string{"cv.txt": sampleCV})
	rec := env.do(t, http.MethodPost, "/api/cvs", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ct = multipartBody(t, map[string]string{"user_id": "u1"}, "file", map[string]string{"cv.exe": "MZ"})
	rec = env.do(t, http.MethodPost, "/api/cvs", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported file type")

	rec = env.do(t, http.MethodPost, "/api/cvs", strings.NewReader("x"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/ingest/nope/status", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchUpload(t *testing.T) {
	env := newTestEnv(t, nil)

	body, ct := multipartBody(t, map[string]string{"user_id": "u1"}, "files", map[string]string{
		"a.txt": sampleCV,
		"b.md":  "# Bob\n\n## Education\n\nBSc\n",
		"c.csv": "a,b",
	})
	rec := env.do(t, http.MethodPost, "/api/cvs/batch", body, ct)
	require.Equal(t, http.StatusAccepted, rec.Code)
	res := decode[map[string][]map[string]any](t, rec)
	require.Len(t, res["jobs"], 3)

	var accepted, rejected int
	for _, j := range res["jobs"] {
		if _, ok := j["error"]; ok {
			rejected++
			assert.Equal(t, "c.csv", j["filename"])
			continue
		}
		accepted++
		waitForJob(t, env, j["job_id"].(string))
	}
	assert.Equal(t, 2, accepted)
	assert.Equal(t, 1, rejected)

	files := map[string]string{"1.txt": "a", "2.txt": "b", "3.txt": "c", "4.txt": "d"}
	body, ct = multipartBody(t, map[string]string{"user_id": "u1"}, "files", files)
	rec = env.do(t, http.MethodPost, "/api/cvs/batch", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatAndSections(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.seed(t, "u1", sampleCV)

	rec := env.doJSON(t, http.MethodPost, "/api/cvs/"+id+"/chat", map[string]string{"message": "I learned Docker and Kubernetes"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reply := decode[chat.Reply](t, rec)
	assert.True(t, reply.Changed)
	assert.Equal(t, 2, reply.Revision)

	rec = env.do(t, http.MethodGet, "/api/cvs/"+id+"/sections/skill", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sec struct {
		Revision int `json:"revision"`
		Match    struct {
			Found   bool   `json:"found"`
			Content string `json:"content"`
		} `json:"match"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sec))
	assert.True(t, sec.Match.Found)
	assert.Contains(t, sec.Match.Content, "Docker and Kubernetes")
	assert.Equal(t, 2, sec.Revision)

	rec = env.do(t, http.MethodGet, "/api/cvs/"+id+"/sections", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"category":"experience"`)

	rec = env.do(t, http.MethodGet, "/api/cvs/"+id+"/revisions/2/diff", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	d := decode[chat.RevisionDiff](t, rec)
	assert.Equal(t, 1, d.Summary.Added)

	for path, code := range map[string]int{
		"/api/cvs/" + id + "/revisions/0/diff": http.StatusBadRequest,
		"/api/cvs/" + id + "/revisions/x/diff": http.StatusBadRequest,
		"/api/cvs/" + id + "/revisions/9/diff": http.StatusNotFound,
		"/api/cvs/" + id + "/sections/astrology": http.StatusBadRequest,
		"/api/cvs/missing/sections":            http.StatusNotFound,
	} {
		assert.Equal(t, code, env.do(t, http.MethodGet, path, nil, "").Code, path)
	}

	rec = env.doJSON(t, http.MethodPost, "/api/cvs/"+id+"/chat", map[string]string{"message": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/cvs/"+id+"/chat", strings.NewReader("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.doJSON(t, http.MethodPost, "/api/cvs/missing/chat", map[string]string{"message": "I learned Go"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEditSection(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.seed(t, "u1", sampleCV)

	rec := env.doJSON(t, http.MethodPost, "/api/cvs/"+id+"/sections/skills", map[string]string{"content": "Go", "mode": "replace"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[chat.EditResult](t, rec)
	assert.Equal(t, "replaced", string(res.Action))
	require.NotNil(t, res.Document)
	assert.Contains(t, res.Document.Text, "SKILLS\nGo\n\nEXPERIENCE")

	rec = env.doJSON(t, http.MethodPost, "/api/cvs/"+id+"/sections/skills", map[string]string{"content": "Go", "mode": "sideways"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.doJSON(t, http.MethodPost, "/api/cvs/"+id+"/sections/astrology", map[string]string{"content": "Go"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClassifyAndExtract(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.doJSON(t, http.MethodPost, "/api/classify", map[string]string{"message": "show my experience"})
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Result struct {
			Category  string `json:"category"`
			Operation string `json:"operation"`
			Source    string `json:"source"`
		} `json:"result"`
		Help string `json:"help"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "experience", out.Result.Category)
	assert.Equal(t, "READ", out.Result.Operation)
	assert.Equal(t, "rules", out.Result.Source)
	assert.Empty(t, out.Help)

	rec = env.doJSON(t, http.MethodPost, "/api/classify", map[string]string{"message": "asdf qwer"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"help"`)

	rec = env.doJSON(t, http.MethodPost, "/api/classify", map[string]string{"message": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.doJSON(t, http.MethodPost, "/api/extract", map[string]string{"message": "I learned Docker and Kubernetes"})
	require.Equal(t, http.StatusOK, rec.Code)
	ext := decode[map[string]string](t, rec)
	assert.Equal(t, "Docker and Kubernetes", ext["fact"])
	assert.Equal(t, "skills", ext["category"])
}

func TestDeleteCV(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.seed(t, "u1", sampleCV)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodDelete, "/api/cvs/"+id, nil, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/cvs/"+id+"?user_id=u2", nil, "").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/cvs/"+id+"?user_id=u1", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/cvs/"+id, nil, "").Code)
}

func TestLLMStats(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodGet, "/api/stats/llm", nil, "").Code)

	llm := claude.NewClient("http://127.0.0.1:0", "k", "claude-test")
	defer llm.Close()
	env = newTestEnv(t, llm)
	rec := env.do(t, http.MethodGet, "/api/stats/llm", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"model":"claude-test"`)
	assert.Contains(t, rec.Body.String(), `"count":0`)
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"cv.pdf":             "cv.pdf",
		"../../etc/passwd":   "passwd",
		`C:\Users\me\cv.doc`: "cv.doc",
		"":                   "unnamed",
		"a..b.txt":           "a_b.txt",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeFilename(in), in)
	}
}
