package gdocs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

type staticSource struct {
	client *http.Client
	err    error
}

func (s staticSource) HTTPClient(context.Context) (*http.Client, error) { return s.client, s.err }

type fakeGoogle struct {
	mu          sync.Mutex
	title       string
	inserted    string
	permissions []drive.Permission
}

func (f *fakeGoogle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/v1/documents"):
		var d docs.Document
		_ = json.NewDecoder(r.Body).Decode(&d)
		f.title = d.Title
		_ = json.NewEncoder(w).Encode(docs.Document{DocumentId: "doc-1", Title: d.Title})
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/v1/documents/doc-1:batchUpdate"):
		var req docs.BatchUpdateDocumentRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Requests) == 1 && req.Requests[0].InsertText != nil {
			f.inserted = req.Requests[0].InsertText.Text
		}
		_ = json.NewEncoder(w).Encode(docs.BatchUpdateDocumentResponse{DocumentId: "doc-1"})
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/files/doc-1/permissions"):
		var p drive.Permission
		_ = json.NewDecoder(r.Body).Decode(&p)
		f.permissions = append(f.permissions, p)
		_ = json.NewEncoder(w).Encode(drive.Permission{Id: "perm-1", Type: p.Type, Role: p.Role})
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/files/doc-1/export"):
		if r.URL.Query().Get("mimeType") != pdfMimeType {
			http.Error(w, "bad mime type", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", pdfMimeType)
		_, _ = io.WriteString(w, "%PDF-1.4 resume")
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":404,"message":"File not found"}}`)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeGoogle) {
	t.Helper()
	fake := &fakeGoogle{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	c := NewClient(staticSource{client: srv.Client()}, time.Second, zap.NewNop().Sugar(), option.WithEndpoint(srv.URL+"/"))
	return c, fake
}

func TestCreateDocInsertsText(t *testing.T) {
	c, fake := newTestClient(t)

	id, err := c.CreateDoc(context.Background(), "job-42", "Jane Doe\nGo engineer")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", id)
	assert.Equal(t, "Resume - job-42", fake.title)
	assert.Equal(t, "Jane Doe\nGo engineer", fake.inserted)
}

func TestShareEditable(t *testing.T) {
	c, fake := newTestClient(t)

	require.NoError(t, c.ShareEditable(context.Background(), "doc-1"))
	require.Len(t, fake.permissions, 1)
	assert.Equal(t, "anyone", fake.permissions[0].Type)
	assert.Equal(t, "writer", fake.permissions[0].Role)

	assert.Error(t, c.ShareEditable(context.Background(), "doc-missing"))
}

func TestExportPDF(t *testing.T) {
	c, _ := newTestClient(t)
	path := filepath.Join(t.TempDir(), "Resume_job-42_abcd.pdf")

	require.NoError(t, c.ExportPDF(context.Background(), "doc-1", path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 resume", string(data))
}

func TestExportPDFFailureLeavesNoFile(t *testing.T) {
	c, _ := newTestClient(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "out.pdf")

	require.Error(t, c.ExportPDF(context.Background(), "doc-missing", path))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCredentialsError(t *testing.T) {
	c := NewClient(staticSource{err: errors.New("no token")}, time.Second, zap.NewNop().Sugar())

	_, err := c.CreateDoc(context.Background(), "j", "text")
	assert.EqualError(t, err, "no token")
}

func TestEditURL(t *testing.T) {
	c := NewClient(staticSource{}, 0, zap.NewNop().Sugar())
	assert.Equal(t, "https://docs.google.com/document/d/abc/edit", c.EditURL("abc"))
}
