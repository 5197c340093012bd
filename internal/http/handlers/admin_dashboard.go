package handlers

import (
	"database/sql"
	"net/http"

	"github.com/evermore-ai/concierge/internal/conversation"
	"github.com/evermore-ai/concierge/pkg/logging"
)

// AdminDashboardHandler serves the back-office overview metrics. It reads
// through database/sql directly; the queries are aggregates the repositories
// have no other use for.
type AdminDashboardHandler struct {
	db       *sql.DB
	minScore int
	logger   *logging.Logger
}

func NewAdminDashboardHandler(db *sql.DB, minScore int, logger *logging.Logger) *AdminDashboardHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if minScore <= 0 {
		minScore = 7
	}
	return &AdminDashboardHandler{db: db, minScore: minScore, logger: logger}
}

// DashboardResponse contains the overview metrics.
type DashboardResponse struct {
	Conversations ConversationStats `json:"conversations"`
	Leads         LeadStats         `json:"leads"`
}

// ConversationStats buckets conversations by canonical status.
type ConversationStats struct {
	Total      int `json:"total"`
	New        int `json:"new"`
	InProgress int `json:"in_progress"`
	Done       int `json:"done"`
}

// LeadStats summarizes the lead pipeline.
type LeadStats struct {
	Total     int     `json:"total"`
	Qualified int     `json:"qualified"`
	AvgScore  float64 `json:"avg_score"`
}

// Overview handles GET /admin/dashboard.
func (h *AdminDashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}

	var resp DashboardResponse

	rows, err := h.db.QueryContext(r.Context(),
		`SELECT status, COUNT(*) FROM conversations GROUP BY status`)
	if err != nil {
		h.logger.Error("dashboard: conversation stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			h.logger.Error("dashboard: scan failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load dashboard")
			return
		}
		resp.Conversations.Total += count
		// Stored statuses are an open vocabulary; bucket on the normalized value.
		switch conversation.NormalizeStatus(status) {
		case conversation.StatusInProgress:
			resp.Conversations.InProgress += count
		case conversation.StatusDone:
			resp.Conversations.Done += count
		default:
			resp.Conversations.New += count
		}
	}
	if err := rows.Err(); err != nil {
		h.logger.Error("dashboard: conversation stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}

	err = h.db.QueryRowContext(r.Context(),
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE score >= $1),
		        COALESCE(AVG(score), 0)
		 FROM leads`, h.minScore,
	).Scan(&resp.Leads.Total, &resp.Leads.Qualified, &resp.Leads.AvgScore)
	if err != nil {
		h.logger.Error("dashboard: lead stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
