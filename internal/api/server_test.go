package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/civicdesk/server/internal/agent"
	"github.com/civicdesk/server/internal/agent/model"
	"github.com/civicdesk/server/internal/agent/validation"
	"github.com/civicdesk/server/internal/knowledge"
	"github.com/civicdesk/server/internal/requests"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIdentifier struct{}

func (stubIdentifier) Identify(ctx context.Context, namespace, userMessage string) *model.ServiceDescriptor {
	return &model.ServiceDescriptor{
		ServiceName:    "Passport Renewal",
		Confidence:     "high",
		RequiredFields: []string{"full_name"},
	}
}

type stubEmbedder struct{}

func (stubEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (stubEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type stubHistory struct {
	messages map[string][]*schema.Message
}

func (s *stubHistory) LoadHistory(ctx context.Context, sessionID string) (*model.ConversationHistory, error) {
	return &model.ConversationHistory{
		SessionID: sessionID,
		Messages:  s.messages[sessionID],
	}, nil
}

func (s *stubHistory) ClearHistory(ctx context.Context, sessionID string) error {
	delete(s.messages, sessionID)
	return nil
}

func testServer(t *testing.T) (*Server, *requests.SqliteStore) {
	t.Helper()

	store, err := requests.NewSqliteStore(filepath.Join(t.TempDir(), "requests.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	kstore, err := knowledge.OpenStore("")
	require.NoError(t, err)
	t.Cleanup(func() { kstore.Close() })

	v, err := validation.Default()
	require.NoError(t, err)

	ag := agent.New(stubIdentifier{}, v, store, nil)
	ingestor := knowledge.NewIngestor(kstore, stubEmbedder{}, knowledge.Config{ChunkSize: 200, ChunkOverlap: 20})
	history := &stubHistory{messages: map[string][]*schema.Message{
		"known": {schema.UserMessage("hi"), schema.AssistantMessage("hello", nil)},
	}}

	cfg := Config{Addr: ":0", UploadDir: t.TempDir(), ChatRateLimit: 1000}
	return NewServer(cfg, ag, store, ingestor, kstore, history), store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	srv, _ := testServer(t)
	rr := doJSON(t, srv.Router(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestChatValidation(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.Router()

	rr := doJSON(t, router, http.MethodPost, "/chat", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["error"], "session_id")

	rr = doJSON(t, router, http.MethodPost, "/chat", map[string]string{"session_id": "s1"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["error"], "message")

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{not json"))
	rr2 := httptest.NewRecorder()
	router.ServeHTTP(rr2, req)
	assert.Equal(t, http.StatusBadRequest, rr2.Code)
}

func TestChatTurn(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.Router()

	rr := doJSON(t, router, http.MethodPost, "/chat", map[string]string{
		"session_id": "s1",
		"message":    "I want to renew my passport",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, true, body["service_identified"])
	assert.Equal(t, "full_name", body["next_field"])
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	srv, _ := testServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "malware.exe")
	require.NoError(t, err)
	_, err = fw.Write([]byte("binary"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["error"], "unsupported file type")
}

func TestUploadIngestsTextFile(t *testing.T) {
	srv, _ := testServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("namespace", "permits"))
	fw, err := mw.CreateFormFile("file", "guide.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("Passport renewal requires a completed application form."))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "guide.txt", body["filename"])
	assert.Equal(t, "documents_permits", body["collection_name"])
}

func TestListRequestsValidation(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.Router()

	rr := doJSON(t, router, http.MethodGet, "/requests?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/requests", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.EqualValues(t, 0, body["total"])
	assert.EqualValues(t, 1, body["page"])
}

func TestRequestLifecycleOverHTTP(t *testing.T) {
	srv, store := testServer(t)
	router := srv.Router()

	rec, err := store.Create(context.Background(), requests.CreateInput{
		ServiceName: "Passport Renewal",
		UserData:    map[string]string{"full_name": "Jane Doe"},
		SessionID:   "s1",
	})
	require.NoError(t, err)

	rr := doJSON(t, router, http.MethodGet, "/requests/"+rec.RequestID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "pending", decodeBody(t, rr)["status"])

	rr = doJSON(t, router, http.MethodPut, "/requests/"+rec.RequestID+"/status",
		map[string]string{"status": "in_progress", "notes": "under review"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "in_progress", decodeBody(t, rr)["new_status"])

	rr = doJSON(t, router, http.MethodPut, "/requests/"+rec.RequestID+"/status",
		map[string]string{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/requests/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, decodeBody(t, rr)["total_requests"])
}

func TestSessionsEndpoints(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.Router()

	// drive one collecting session through /chat
	rr := doJSON(t, router, http.MethodPost, "/chat", map[string]string{
		"session_id": "s1", "message": "renew passport",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/sessions", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.EqualValues(t, 1, body["active_sessions"])
	sessions, ok := body["sessions"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, sessions, "s1")

	rr = doJSON(t, router, http.MethodGet, "/sessions/known/history", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 2, decodeBody(t, rr)["message_count"])

	rr = doJSON(t, router, http.MethodGet, "/sessions/unknown/history", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// deleting drops both the live session and the durable history
	rr = doJSON(t, router, http.MethodDelete, "/sessions/s1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/sessions", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 0, decodeBody(t, rr)["active_sessions"])
}

func TestNamespacesAndCollections(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.Router()

	require.NoError(t, srv.kstore.SaveChunk(context.Background(), "documents_permits",
		knowledge.Chunk{ID: "a", Vector: []float32{1, 0}}))

	rr := doJSON(t, router, http.MethodGet, "/namespaces", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Contains(t, body["namespaces"], "permits")

	rr = doJSON(t, router, http.MethodGet, "/collections/permits", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body = decodeBody(t, rr)
	collections, ok := body["collections"].([]any)
	require.True(t, ok)
	require.Len(t, collections, 1)
	entry := collections[0].(map[string]any)
	assert.Equal(t, "documents_permits", entry["name"])
	assert.EqualValues(t, 1, entry["chunks"])
}
