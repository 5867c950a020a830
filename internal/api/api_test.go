package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/docstream/internal/auth"
	"github.com/lalith-99/docstream/internal/document"
	"github.com/lalith-99/docstream/internal/middleware"
	"github.com/lalith-99/docstream/internal/models"
	"github.com/lalith-99/docstream/internal/realtime"
	"github.com/lalith-99/docstream/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type apiFixture struct {
	router *gin.Engine
	users  *memory.UserStore
	hub    *realtime.Hub
	health map[string]HealthCheck
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := zap.NewNop()
	f := &apiFixture{
		users:  memory.NewUserStore(),
		health: map[string]HealthCheck{"store": func(context.Context) error { return nil }},
	}
	presence := memory.NewPresenceStore()
	versions := memory.NewVersionStore()
	svc := document.NewService(memory.NewDocumentStore(versions), versions, memory.NewOperationStore(), logger,
		document.WithHistoryLimit(50))
	f.hub = realtime.NewHub(svc, presence, realtime.Options{}, logger)
	t.Cleanup(f.hub.Close)

	f.router = NewRouter(Handlers{
		Auth:      NewAuthHandler(f.users, memory.NewTenantStore(), testSecret, time.Hour, logger),
		Users:     NewUserHandler(f.users, logger),
		Documents: NewDocumentHandler(svc, f.hub, logger),
		Presence:  NewPresenceHandler(svc, presence, logger),
		Health:    NewHealthHandler(f.health, logger),
	}, testSecret)
	return f
}

type credentials struct {
	header map[string]string
}

func bearer(token string) credentials {
	return credentials{header: map[string]string{"Authorization": "Bearer " + token}}
}

func shareLink(tenantID, token string) credentials {
	return credentials{header: map[string]string{
		middleware.HeaderShareToken: token,
		middleware.HeaderTenantID:   tenantID,
	}}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, creds credentials) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range creds.header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (f *apiFixture) signup(t *testing.T, email string) authResponse {
	t.Helper()
	w := f.do(t, http.MethodPost, "/v1/auth/signup", gin.H{
		"email":        email,
		"password":     "correct horse",
		"display_name": "Ada",
		"tenant_name":  "acme",
	}, credentials{})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[authResponse](t, w)
}

// colleague creates another user in tenantID and returns their token.
func (f *apiFixture) colleague(t *testing.T, tenantID uuid.UUID, email string) (uuid.UUID, string) {
	t.Helper()
	u, err := f.users.Create(context.Background(), tenantID, email, "Bob", "x")
	require.NoError(t, err)
	token, err := auth.GenerateToken(u.ID, tenantID, email, testSecret, time.Hour)
	require.NoError(t, err)
	return u.ID, token
}

func (f *apiFixture) createDoc(t *testing.T, token, content string) models.Document {
	t.Helper()
	w := f.do(t, http.MethodPost, "/v1/documents", gin.H{"title": "notes", "content": content}, bearer(token))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Document](t, w)
}

func TestSignupLoginAndMe(t *testing.T) {
	f := newAPIFixture(t)

	signed := f.signup(t, "ada@example.com")
	assert.NotEmpty(t, signed.Token)
	require.NotNil(t, signed.User)
	assert.Equal(t, "ada@example.com", signed.User.Email)

	w := f.do(t, http.MethodPost, "/v1/auth/signup", gin.H{
		"email": "ada@example.com", "password": "correct horse", "display_name": "Ada", "tenant_name": "other",
	}, credentials{})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/v1/auth/login", gin.H{"email": "ada@example.com", "password": "wrong pass"}, credentials{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/v1/auth/login", gin.H{"email": "nobody@example.com", "password": "wrong pass"}, credentials{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/v1/auth/login", gin.H{"email": "ada@example.com", "password": "correct horse"}, credentials{})
	require.Equal(t, http.StatusOK, w.Code)
	login := decode[authResponse](t, w)

	w = f.do(t, http.MethodGet, "/v1/users/me", nil, bearer(login.Token))
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[models.User](t, w)
	assert.Equal(t, signed.User.ID, me.ID)
	assert.NotContains(t, w.Body.String(), "correct horse")
}

func TestSignupValidation(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/v1/auth/signup", gin.H{"email": "not-an-email", "password": "short"}, credentials{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEditVersionsAndRevert(t *testing.T) {
	f := newAPIFixture(t)
	owner := f.signup(t, "ada@example.com")
	doc := f.createDoc(t, owner.Token, "A")
	assert.Equal(t, int64(0), doc.Version)
	base := "/v1/documents/" + doc.ID.String()

	w := f.do(t, http.MethodPut, base+"/content", gin.H{"content": "B", "base_version": 0}, bearer(owner.Token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode[document.EditResult](t, w)
	assert.False(t, first.Stale)
	assert.Equal(t, int64(1), first.Document.Version)

	// Second writer still believes the document is at version 0.
	w = f.do(t, http.MethodPut, base+"/content", gin.H{"content": "C", "base_version": 0}, bearer(owner.Token))
	require.Equal(t, http.StatusOK, w.Code)
	second := decode[document.EditResult](t, w)
	assert.True(t, second.Stale)
	assert.Equal(t, int64(2), second.Document.Version)
	assert.Equal(t, "C", second.Document.Content)

	w = f.do(t, http.MethodPut, base+"/content", gin.H{"base_version": 0}, bearer(owner.Token))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, base+"/versions", nil, bearer(owner.Token))
	require.Equal(t, http.StatusOK, w.Code)
	versions := decode[[]models.DocumentVersion](t, w)
	require.Len(t, versions, 3)
	assert.Equal(t, []int64{2, 1, 0}, []int64{versions[0].Sequence, versions[1].Sequence, versions[2].Sequence})

	w = f.do(t, http.MethodGet, base+"/versions?limit=1", nil, bearer(owner.Token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.DocumentVersion](t, w), 1)

	w = f.do(t, http.MethodGet, base+"/versions?limit=abc", nil, bearer(owner.Token))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, base+"/versions/"+versions[2].ID.String()+"/revert", nil, bearer(owner.Token))
	require.Equal(t, http.StatusOK, w.Code)
	rev := decode[document.RevertResult](t, w)
	assert.Equal(t, "A", rev.Document.Content)
	assert.Equal(t, int64(3), rev.Version.Sequence)
	assert.Equal(t, document.RevertLabel(0), rev.Version.Label)

	w = f.do(t, http.MethodPost, base+"/versions/"+uuid.NewString()+"/revert", nil, bearer(owner.Token))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, base+"/operations", nil, bearer(owner.Token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Operation](t, w), 2)
}

func TestShareLinkAccess(t *testing.T) {
	f := newAPIFixture(t)
	owner := f.signup(t, "ada@example.com")
	doc := f.createDoc(t, owner.Token, "A")
	base := "/v1/documents/" + doc.ID.String()
	tenant := doc.TenantID.String()

	w := f.do(t, http.MethodPost, base+"/share-links", gin.H{"level": "comment"}, bearer(owner.Token))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	link := decode[models.ShareLink](t, w)
	assert.Len(t, link.Token, 43)

	w = f.do(t, http.MethodGet, base, nil, shareLink(tenant, link.Token))
	require.Equal(t, http.StatusOK, w.Code)
	seen := decode[models.Document](t, w)
	assert.Equal(t, "A", seen.Content)
	assert.Empty(t, seen.ShareLinks)

	w = f.do(t, http.MethodPut, base+"/permissions", gin.H{"subject_id": uuid.NewString(), "level": "edit"}, shareLink(tenant, link.Token))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPut, base+"/content", gin.H{"content": "B"}, shareLink(tenant, link.Token))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, base+"/share-links", gin.H{"level": "owner"}, bearer(owner.Token))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, base+"/share-links", gin.H{"level": "view", "expires_at": time.Now().Add(-time.Hour)}, bearer(owner.Token))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodDelete, base+"/share-links/"+link.ID.String(), nil, bearer(owner.Token))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodDelete, base+"/share-links/"+link.ID.String(), nil, bearer(owner.Token))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, base, nil, shareLink(tenant, link.Token))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPermissionsAndIsolation(t *testing.T) {
	f := newAPIFixture(t)
	owner := f.signup(t, "ada@example.com")
	doc := f.createDoc(t, owner.Token, "A")
	base := "/v1/documents/" + doc.ID.String()

	bobID, bob := f.colleague(t, doc.TenantID, "bob@example.com")

	w := f.do(t, http.MethodGet, base, nil, bearer(bob))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPut, base+"/permissions", gin.H{"subject_id": bobID, "level": "view"}, bearer(owner.Token))
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, base, nil, bearer(bob))
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/v1/documents", nil, bearer(bob))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Document](t, w), 1)

	w = f.do(t, http.MethodPut, base+"/content", gin.H{"content": "B"}, bearer(bob))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPut, base+"/permissions", gin.H{"subject_id": owner.User.ID, "level": "view"}, bearer(owner.Token))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, base+"/presence", nil, bearer(bob))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())

	outsider := f.signup(t, "eve@example.com")
	w = f.do(t, http.MethodGet, base, nil, bearer(outsider.Token))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/v1/documents/not-a-uuid", nil, bearer(owner.Token))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthRequired(t *testing.T) {
	f := newAPIFixture(t)

	for _, path := range []string{"/v1/documents", "/v1/users/me", "/v1/documents/" + uuid.NewString() + "/ws"} {
		w := f.do(t, http.MethodGet, path, nil, credentials{})
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/v1/health", nil, credentials{})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"store":"ok"}}`, w.Body.String())

	f.health["redis"] = func(context.Context) error { return errors.New("connection refused") }
	w = f.do(t, http.MethodGet, "/v1/health", nil, credentials{})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"unavailable"`)
}
