package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"net/http"

	"github.com/procurewatch/tender-monitor/internal/domain"
	"github.com/procurewatch/tender-monitor/internal/pkg/httputil"
	"github.com/procurewatch/tender-monitor/internal/repository/postgres"
)

// FilterStore loads the filter an instant search runs against.
type FilterStore interface {
	Get(ctx context.Context, userID, filterID int64) (*domain.Filter, error)
}

// InstantSearch runs the one-shot pipeline and delivers the report to the
// user's chat.
type InstantSearch interface {
	RunAndDeliver(ctx context.Context, user *domain.User, f *domain.Filter) (int, error)
}

// SearchHandler lets the chat front-end trigger an instant search over HTTP.
// Guarded by the same shared token as the rest of the non-public surface.
type SearchHandler struct {
	token   string
	users   UserStore
	filters FilterStore
	search  InstantSearch
}

func NewSearchHandler(token string, users UserStore, filters FilterStore, search InstantSearch) *SearchHandler {
	return &SearchHandler{token: token, users: users, filters: filters, search: search}
}

type instantSearchRequest struct {
	ExternalID int64 `json:"external_id"`
	FilterID   int64 `json:"filter_id"`
}

// Handle runs the filter now and delivers the HTML report to the user's chat.
//
//	POST /search/instant
func (h *SearchHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.token == "" {
		httputil.Error(w, http.StatusServiceUnavailable, "search endpoint not configured")
		return
	}
	got := r.Header.Get("X-Webhook-Token")
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
		httputil.Error(w, http.StatusUnauthorized, "invalid token")
		return
	}

	var req instantSearchRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.ExternalID == 0 || req.FilterID == 0 {
		httputil.BadRequest(w, "external_id and filter_id are required")
		return
	}

	user, err := h.users.GetByExternalID(r.Context(), req.ExternalID)
	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			httputil.NotFound(w, "user not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	f, err := h.filters.Get(r.Context(), user.ID, req.FilterID)
	if err != nil {
		if errors.Is(err, postgres.ErrFilterNotFound) {
			httputil.NotFound(w, "filter not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	n, err := h.search.RunAndDeliver(r.Context(), user, f)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyKeywords) {
			httputil.BadRequest(w, "filter has no keywords")
			return
		}
		log.Printf("[API] instant search for user %d filter %d: %v", user.ID, f.ID, err)
		httputil.Error(w, http.StatusBadGateway, "search failed: "+err.Error())
		return
	}

	httputil.OK(w, map[string]any{"matches": n})
}
