package matching_api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BridgeAid/MatchBox/internal/models"
	"github.com/BridgeAid/MatchBox/internal/services/matching"
	"github.com/BridgeAid/MatchBox/internal/storage/pgmatch"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

// Service is the slice of the matching engine the HTTP layer needs.
type Service interface {
	CreateRequester(ctx context.Context, in models.RequesterCreateInput) (*models.Requester, error)
	GetRequester(ctx context.Context, id uint64) (*models.Requester, error)
	MatchRequester(ctx context.Context, requesterID uint64, matchType models.MatchType, queueOnFailure bool) (matching.Outcome, error)
	GetMatch(ctx context.Context, id uint64) (*models.Match, error)
	ListRequesterHistory(ctx context.Context, requesterID uint64, limit, offset int) ([]*models.StatusHistoryEntry, error)
	ReserveVolunteer(ctx context.Context, requesterID, volunteerID uint64) (*models.MatchConfirmation, error)
	UpsertVolunteer(ctx context.Context, v *models.VolunteerAvailability) (*models.VolunteerAvailability, error)
}

type MatchingAPI struct {
	svc Service
}

func New(svc Service) *MatchingAPI {
	return &MatchingAPI{svc: svc}
}

func (a *MatchingAPI) Routes(r chi.Router) {
	r.Post("/v1/requesters", a.createRequester)
	r.Get("/v1/requesters/{id}", a.getRequester)
	r.Post("/v1/requesters/{id}/match", a.matchRequester)
	r.Get("/v1/requesters/{id}/history", a.listRequesterHistory)
	r.Post("/v1/requesters/{id}/reservations", a.reserveVolunteer)
	r.Get("/v1/matches/{id}", a.getMatch)
	r.Post("/v1/volunteers", a.upsertVolunteer)
}

type createRequesterRequest struct {
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Category  string   `json:"category"`
	City      string   `json:"city,omitempty"`
	State     string   `json:"state,omitempty"`
	Country   string   `json:"country,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	TicketID  *uint64  `json:"ticketId,omitempty"`
}

func (a *MatchingAPI) createRequester(w http.ResponseWriter, r *http.Request) {
	var req createRequesterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	out, err := a.svc.CreateRequester(r.Context(), models.RequesterCreateInput{
		Name:      req.Name,
		Email:     req.Email,
		Category:  models.SupportCategory(req.Category),
		City:      req.City,
		State:     req.State,
		Country:   req.Country,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		TicketID:  req.TicketID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (a *MatchingAPI) getRequester(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	out, err := a.svc.GetRequester(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type matchRequesterRequest struct {
	MatchType      string `json:"matchType,omitempty"`
	QueueOnFailure bool   `json:"queueOnFailure,omitempty"`
}

func (a *MatchingAPI) matchRequester(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req matchRequesterRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
	}
	matchType := models.MatchTypeSystem
	if req.MatchType != "" {
		matchType = models.MatchType(req.MatchType)
	}

	out, err := a.svc.MatchRequester(r.Context(), id, matchType, req.QueueOnFailure)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *MatchingAPI) listRequesterHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	items, err := a.svc.ListRequesterHistory(r.Context(), id, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type reserveVolunteerRequest struct {
	VolunteerID uint64 `json:"volunteerId"`
}

func (a *MatchingAPI) reserveVolunteer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reserveVolunteerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	out, err := a.svc.ReserveVolunteer(r.Context(), id, req.VolunteerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (a *MatchingAPI) getMatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	out, err := a.svc.GetMatch(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type upsertVolunteerRequest struct {
	VolunteerID uint64   `json:"volunteerId"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Category    string   `json:"category"`
	City        string   `json:"city,omitempty"`
	State       string   `json:"state,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	MaxLoad     int32    `json:"maxLoad"`
	TicketID    *uint64  `json:"ticketId,omitempty"`
}

func (a *MatchingAPI) upsertVolunteer(w http.ResponseWriter, r *http.Request) {
	var req upsertVolunteerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	out, err := a.svc.UpsertVolunteer(r.Context(), &models.VolunteerAvailability{
		VolunteerID: req.VolunteerID,
		Name:        req.Name,
		Email:       req.Email,
		Category:    models.SupportCategory(req.Category),
		City:        req.City,
		State:       req.State,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		MaxLoad:     req.MaxLoad,
		TicketID:    req.TicketID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, pgmatch.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	slog.Error("api request failed", "error", err.Error())
	writeError(w, http.StatusBadRequest, err.Error())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
