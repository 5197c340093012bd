package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/evermore-ai/concierge/internal/conversation"
	"github.com/evermore-ai/concierge/internal/http/handlers"
	"github.com/evermore-ai/concierge/internal/leads"
	"github.com/evermore-ai/concierge/internal/webchat"
)

const testSecret = "router-test-secret"

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	convRepo := conversation.NewInMemoryRepository()
	leadsRepo := leads.NewInMemoryRepository()
	orch := conversation.NewOrchestrator(conversation.OrchestratorDeps{
		Repo:      convRepo,
		Msgs:      convRepo,
		LeadsRepo: leadsRepo,
	})
	return New(&Config{
		Chat:               handlers.NewChatHandler(orch, nil),
		Webchat:            webchat.NewHandler(orch, nil, []byte("// widget"), nil),
		AdminConversations: handlers.NewAdminConversationsHandler(convRepo, convRepo, nil, orch, nil, 0, nil),
		AdminLeads:         handlers.NewAdminLeadsHandler(leadsRepo, convRepo, nil, nil),
		AdminAuthSecret:    testSecret,
	})
}

func adminToken(t *testing.T) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestPublicRoutes(t *testing.T) {
	r := testRouter(t)

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/widget.js", http.StatusOK},
		{http.MethodGet, "/chat/history", http.StatusBadRequest},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%s %s = %d, want %d", tc.method, tc.path, rec.Code, tc.want)
		}
	}
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	r := testRouter(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/admin/conversations"},
		{http.MethodGet, "/admin/leads"},
		{http.MethodPost, "/admin/send-human-reply"},
		{http.MethodPost, "/admin/delete-conversation"},
		{http.MethodPost, "/admin/delete-lead"},
		{http.MethodPost, "/admin/create-lead-from-conversation"},
		{http.MethodPatch, "/admin/lead"},
	}
	for _, tc := range paths {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token = %d, want 401", tc.method, tc.path, rec.Code)
		}
	}
}

func TestAdminRoutesWithToken(t *testing.T) {
	r := testRouter(t)
	token := adminToken(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /admin/conversations = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/leads", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /admin/leads = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}
