package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/evermore-ai/concierge/internal/http/handlers"
	httpmiddleware "github.com/evermore-ai/concierge/internal/http/middleware"
	"github.com/evermore-ai/concierge/internal/realtime"
	"github.com/evermore-ai/concierge/internal/webchat"
	"github.com/evermore-ai/concierge/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Chat               *handlers.ChatHandler
	Webchat            *webchat.Handler
	AdminConversations *handlers.AdminConversationsHandler
	AdminLeads         *handlers.AdminLeadsHandler
	AdminDashboard     *handlers.AdminDashboardHandler
	Feed               *realtime.FeedHandler
	MetricsHandler     http.Handler
	AdminAuthSecret    string
	CORSAllowedOrigins []string
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints: the widget and its transports.
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.Chat != nil {
			public.Post("/chat-reply", cfg.Chat.Reply)
		}
		if cfg.Webchat != nil {
			public.Get("/chat/ws", cfg.Webchat.HandleWebSocket)
			public.Post("/chat/message", cfg.Webchat.HandleMessage)
			public.Get("/chat/history", cfg.Webchat.HandleHistory)
			public.Get("/widget.js", cfg.Webchat.HandleWidgetJS)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Admin back-office, JWT-protected.
	r.Group(func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))

		if cfg.AdminConversations != nil {
			admin.Get("/admin/conversations", cfg.AdminConversations.List)
			admin.Get("/admin/conversations/{id}", cfg.AdminConversations.Detail)
			admin.Post("/admin/send-human-reply", cfg.AdminConversations.SendHumanReply)
			admin.Post("/admin/delete-conversation", cfg.AdminConversations.Delete)
		}
		if cfg.AdminLeads != nil {
			admin.Get("/admin/leads", cfg.AdminLeads.List)
			admin.Patch("/admin/lead", cfg.AdminLeads.Update)
			admin.Post("/admin/delete-lead", cfg.AdminLeads.Delete)
			admin.Post("/admin/create-lead-from-conversation", cfg.AdminLeads.CreateFromConversation)
		}
		if cfg.AdminDashboard != nil {
			admin.Get("/admin/dashboard", cfg.AdminDashboard.Overview)
		}
		if cfg.Feed != nil {
			admin.Get("/admin/feed", cfg.Feed.ServeHTTP)
		}
	})

	return r
}
