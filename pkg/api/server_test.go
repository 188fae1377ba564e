package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/modelhost/pkg/metrics"
	"github.com/cuemby/modelhost/pkg/notify"
	"github.com/cuemby/modelhost/pkg/pipeline"
	"github.com/cuemby/modelhost/pkg/storage"
	"github.com/cuemby/modelhost/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePipeline struct {
	mu        sync.Mutex
	runs      []pipeline.Upload
	runErr    error
	torndown  []string
	artifacts []string
}

func (p *fakePipeline) Run(ctx context.Context, up pipeline.Upload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = append(p.runs, up)
	if data, err := os.ReadFile(up.ArtifactPath); err == nil {
		p.artifacts = append(p.artifacts, string(data))
	}
	return p.runErr
}

func (p *fakePipeline) Teardown(ctx context.Context, d *types.Deployment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.torndown = append(p.torndown, d.ID)
	return nil
}

type testServer struct {
	srv       *Server
	store     storage.Store
	pipeline  *fakePipeline
	uploadDir string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ts := &testServer{store: store, pipeline: &fakePipeline{}, uploadDir: t.TempDir()}
	ts.srv = NewServer(Options{
		Store:         store,
		Pipeline:      ts.pipeline,
		Hub:           notify.NewHub(),
		UploadDir:     ts.uploadDir,
		MaxUploadSize: 1 << 20,
	})
	ts.srv.async = func(f func()) { f() }
	ts.srv.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, fields map[string]string, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, APIRoot+"/modelhost", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestUpload_CreatesRecordAndStartsJob(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(uploadRequest(t, map[string]string{"name": "My Model", "userId": "user-1"}, "model.tar.gz", []byte("weights")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[messageResponse](t, rec)
	require.NotEmpty(t, resp.ID)
	assert.NotEmpty(t, resp.Message)

	d, err := ts.store.GetDeployment(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCreating, d.Status)
	assert.Equal(t, "user-1", d.UserID)
	assert.Equal(t, "My Model", d.Name)

	require.Len(t, ts.pipeline.runs, 1)
	up := ts.pipeline.runs[0]
	assert.Equal(t, resp.ID, up.DeploymentID)
	assert.Equal(t, "user-1", up.UserID)
	assert.Equal(t, "My Model", up.Name)
	assert.Equal(t, filepath.Join(ts.uploadDir, "model-1700000000000"), up.ContextDir)
	assert.Equal(t, filepath.Join(up.ContextDir, "model-1700000000000.tar.gz"), up.ArtifactPath)
	assert.Equal(t, []string{"weights"}, ts.pipeline.artifacts)
}

func TestUpload_ExistingRecordAndHeaderUser(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.CreateDeployment(context.Background(), types.NewDeployment("dep-1", "MyModel", "")))

	req := uploadRequest(t, map[string]string{"id": "dep-1", "name": "Other Model"}, "model.tar.gz", []byte("w"))
	req.Header.Set(UserIDHeader, "user-9")
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "dep-1", decode[messageResponse](t, rec).ID)
	require.Len(t, ts.pipeline.runs, 1)
	assert.Equal(t, "user-9", ts.pipeline.runs[0].UserID)
	assert.Equal(t, "MyModel", ts.pipeline.runs[0].Name, "the stored name wins over the form")
}

func TestUpload_ExistingRecordKeptWhenJobRefused(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.CreateDeployment(context.Background(), types.NewDeployment("dep-1", "MyModel", "user-1")))
	ts.pipeline.runErr = pipeline.ErrJobRunning

	rec := ts.do(uploadRequest(t, map[string]string{"id": "dep-1"}, "model.tar.gz", []byte("w")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	d, err := ts.store.GetDeployment(context.Background(), "dep-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCreating, d.Status)
}

func TestUpload_EmptyArtifact(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(uploadRequest(t, map[string]string{"name": "m", "userId": "u"}, "m.tar.gz", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, ts.pipeline.runs)

	list, err := ts.store.ListDeployments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]string
		filename string
		runErr   error
		code     int
	}{
		{"no file", map[string]string{"name": "m", "userId": "u"}, "", nil, http.StatusBadRequest},
		{"invalid name", map[string]string{"name": "my_model", "userId": "u"}, "m.tar.gz", nil, http.StatusInternalServerError},
		{"no user", map[string]string{"name": "m"}, "m.tar.gz", nil, http.StatusInternalServerError},
		{"unknown id", map[string]string{"id": "missing", "userId": "u"}, "m.tar.gz", nil, http.StatusInternalServerError},
		{"pipeline refuses", map[string]string{"name": "m", "userId": "u"}, "m.tar.gz", errors.New("artifact is empty"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.pipeline.runErr = tt.runErr

			rec := ts.do(uploadRequest(t, tt.fields, tt.filename, []byte("w")))
			assert.Equal(t, tt.code, rec.Code)
			assert.NotEmpty(t, decode[messageResponse](t, rec).Message)

			entries, err := os.ReadDir(ts.uploadDir)
			require.NoError(t, err)
			assert.Empty(t, entries, "no build context is left behind")

			list, err := ts.store.ListDeployments(context.Background())
			require.NoError(t, err)
			assert.Empty(t, list, "no record is left in Creating")
		})
	}
}

func TestUpload_BodyLimit(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(uploadRequest(t, map[string]string{"name": "m", "userId": "u"}, "m.tar.gz", make([]byte, 2<<20)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, ts.pipeline.runs)
}

func TestGetAndList(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, ts.store.CreateDeployment(ctx, types.NewDeployment("a", "A", "u1")))
	require.NoError(t, ts.store.CreateDeployment(ctx, types.NewDeployment("b", "B", "u2")))
	_, err := ts.store.UpdateDeploymentFields(ctx, "a", types.EndpointUpdate("A-endpoint"))
	require.NoError(t, err)

	rec := ts.do(httptest.NewRequest(http.MethodGet, APIRoot+"/deployments/a", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	d := decode[types.Deployment](t, rec)
	assert.Equal(t, "A-endpoint", d.EndpointName)
	assert.Contains(t, rec.Body.String(), `"endpointName":"A-endpoint"`)

	rec = ts.do(httptest.NewRequest(http.MethodGet, APIRoot+"/deployments/zzz", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, APIRoot+"/deployments", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]types.Deployment](t, rec), 2)

	rec = ts.do(httptest.NewRequest(http.MethodGet, APIRoot+"/deployments?userId=u2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]types.Deployment](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ID)

	rec = ts.do(httptest.NewRequest(http.MethodGet, APIRoot+"/deployments?userId=nobody", nil))
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestDelete(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.CreateDeployment(context.Background(), types.NewDeployment("a", "A", "u1")))

	rec := ts.do(httptest.NewRequest(http.MethodDelete, APIRoot+"/deployments/a", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a"}, ts.pipeline.torndown)

	_, err := ts.store.GetDeployment(context.Background(), "a")
	assert.ErrorIs(t, err, types.ErrNotFound)

	rec = ts.do(httptest.NewRequest(http.MethodDelete, APIRoot+"/deployments/a", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Len(t, ts.pipeline.torndown, 1)
}

func TestHealthRoutes(t *testing.T) {
	ts := newTestServer(t)

	metrics.SetCriticalComponents("store")
	metrics.UpdateComponent("store", false, "database is locked")
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	metrics.UpdateComponent("store", true, "")
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "modelhost_api_requests_total")
}

func TestUploadBase(t *testing.T) {
	tests := map[string]string{
		"model.tar.gz":     "model",
		"My Model.tgz":     "My-Model",
		"../../etc/passwd": "passwd",
		"weights.TAR.GZ":   "weights",
		"...":              "model",
		"sentiment-v2.tar": "sentiment-v2",
		"archive.zip":      "archive.zip",
	}
	for in, want := range tests {
		assert.Equal(t, want, uploadBase(in), in)
	}
}
