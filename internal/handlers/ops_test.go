package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupchat-client/internal/middleware"
	"groupchat-client/internal/models"
	"groupchat-client/internal/store"
)

func setupOpsRouter(registry *store.Registry, opsToken string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewOpsHandler(registry)
	r.GET("/healthz", handler.Health)
	guarded := r.Group("/", middleware.OpsAuth(opsToken))
	guarded.GET("/groups/:group_id/state", handler.GroupState)
	guarded.GET("/groups/:group_id/messages", handler.GroupMessages)
	return r
}

func TestHealth(t *testing.T) {
	router := setupOpsRouter(store.NewRegistry(), "")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGroupStateSnapshot(t *testing.T) {
	registry := store.NewRegistry()
	registry.AddMessage("g1", models.GroupChatMessage{MessageID: "m1", GroupID: "g1"})
	registry.SetTypingUser("g1", "u2", true)
	registry.SetOnlineMembers("g1", []string{"u1", "u2"})
	registry.SetConnectionStatus("g1", models.ConnectionStatus{IsConnected: true})
	router := setupOpsRouter(registry, "")

	req := httptest.NewRequest(http.MethodGet, "/groups/g1/state", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		GroupID       string   `json:"group_id"`
		MessageCount  int      `json:"message_count"`
		TypingUsers   []string `json:"typing_users"`
		OnlineMembers []string `json:"online_members"`
		Connection    struct {
			IsConnected bool `json:"is_connected"`
		} `json:"connection"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "g1", body.GroupID)
	assert.Equal(t, 1, body.MessageCount)
	assert.Equal(t, []string{"u2"}, body.TypingUsers)
	assert.Equal(t, []string{"u1", "u2"}, body.OnlineMembers)
	assert.True(t, body.Connection.IsConnected)
}

func TestGroupStateUnknownGroup(t *testing.T) {
	router := setupOpsRouter(store.NewRegistry(), "")

	req := httptest.NewRequest(http.MethodGet, "/groups/nope/state", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message_count":0`)
}

func TestNewRouterRecoversFromPanic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(store.NewRegistry(), nil, "", false)
	router.GET("/boom", func(c *gin.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNewRouterServesHealthAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(store.NewRegistry(), nil, "", false)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "groupchat_ws_active_connections")
}

func TestNewRouterDebugRoutesGated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(store.NewRegistry(), nil, "", false)

	req := httptest.NewRequest(http.MethodGet, "/debug/telemetry-test", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	router = NewRouter(store.NewRegistry(), nil, "", true)
	req = httptest.NewRequest(http.MethodGet, "/debug/telemetry-test", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOpsAuthGuardsState(t *testing.T) {
	router := setupOpsRouter(store.NewRegistry(), "s3cret")

	req := httptest.NewRequest(http.MethodGet, "/groups/g1/state", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/groups/g1/state", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/groups/g1/state", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
