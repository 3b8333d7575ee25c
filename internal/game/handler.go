// internal/game/handler.go
package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"hipsterbar/internal/bar"
	"hipsterbar/internal/storage"
)

const keepAliveInterval = 15 * time.Second

type Handler struct {
	service Service
	hub     *Hub
	logger  *slog.Logger
}

func NewHandler(service Service, hub *Hub, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{service: service, hub: hub, logger: logger.With("component", "http")}
}

// Routes returns the HTTP API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Post("/bars", h.HandleCreateBar)
	r.Route("/bars/{code}", func(r chi.Router) {
		r.Get("/", h.HandleGetBar)
		r.Put("/quota", h.HandleSetDefaultQuota)
		r.Get("/leaderboard", h.HandleLeaderboard)
		r.Get("/events", h.HandleEvents)

		r.Post("/members", h.HandleJoin)
		r.Get("/members/{memberID}", h.HandleMemberStatus)
		r.Put("/members/{memberID}/quota", h.HandleSetMemberQuota)

		r.Post("/submissions", h.HandleSubmit)
		r.Delete("/submissions/{submissionID}", h.HandleRemoveSubmission)

		r.Post("/sessions", h.HandleStartSession)
		r.Post("/sessions/{sessionID}/cycles", h.HandleStartCycle)
		r.Post("/sessions/{sessionID}/end", h.HandleEndSession)

		r.Post("/cycles/{cycleID}/votes", h.HandleCastVote)
		r.Post("/cycles/{cycleID}/reveal", h.HandleReveal)
	})
	return r
}

func (h *Handler) HandleCreateBar(w http.ResponseWriter, r *http.Request) {
	var req CreateBarParams
	if !decode(w, r, &req) {
		return
	}
	view, err := h.service.CreateBar(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) HandleGetBar(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetBar(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleSetDefaultQuota(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quota int `json:"quota"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.service.SetDefaultQuota(r.Context(), chi.URLParam(r, "code"), req.Quota); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.service.Leaderboard(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *Handler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName string `json:"display_name"`
	}
	if !decode(w, r, &req) {
		return
	}
	member, err := h.service.JoinBar(r.Context(), chi.URLParam(r, "code"), req.DisplayName)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newMemberView(member))
}

func (h *Handler) HandleMemberStatus(w http.ResponseWriter, r *http.Request) {
	memberID, ok := uuidParam(w, r, "memberID")
	if !ok {
		return
	}
	status, err := h.service.MemberStatus(r.Context(), chi.URLParam(r, "code"), memberID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) HandleSetMemberQuota(w http.ResponseWriter, r *http.Request) {
	memberID, ok := uuidParam(w, r, "memberID")
	if !ok {
		return
	}
	var req struct {
		Quota int `json:"quota"`
	}
	if !decode(w, r, &req) {
		return
	}
	member, err := h.service.SetMemberQuota(r.Context(), chi.URLParam(r, "code"), memberID, req.Quota)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMemberView(member))
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitParams
	if !decode(w, r, &req) {
		return
	}
	sub, err := h.service.Submit(r.Context(), chi.URLParam(r, "code"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSubmissionView(sub))
}

// HandleRemoveSubmission expects the owner in the member_id query parameter.
func (h *Handler) HandleRemoveSubmission(w http.ResponseWriter, r *http.Request) {
	submissionID, ok := uuidParam(w, r, "submissionID")
	if !ok {
		return
	}
	memberID, err := uuid.Parse(r.URL.Query().Get("member_id"))
	if err != nil {
		http.Error(w, "member_id query parameter must be a UUID", http.StatusBadRequest)
		return
	}
	if err := h.service.RemoveSubmission(r.Context(), chi.URLParam(r, "code"), memberID, submissionID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.StartSession(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) HandleStartCycle(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := uuidParam(w, r, "sessionID")
	if !ok {
		return
	}
	cycle, err := h.service.StartNextCycle(r.Context(), chi.URLParam(r, "code"), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cycle)
}

func (h *Handler) HandleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := uuidParam(w, r, "sessionID")
	if !ok {
		return
	}
	session, err := h.service.EndSession(r.Context(), chi.URLParam(r, "code"), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) HandleCastVote(w http.ResponseWriter, r *http.Request) {
	cycleID, ok := uuidParam(w, r, "cycleID")
	if !ok {
		return
	}
	var req struct {
		VoterID  uuid.UUID `json:"voter_id"`
		TargetID uuid.UUID `json:"target_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	vote, err := h.service.CastVote(r.Context(), chi.URLParam(r, "code"), cycleID, req.VoterID, req.TargetID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, vote)
}

func (h *Handler) HandleReveal(w http.ResponseWriter, r *http.Request) {
	cycleID, ok := uuidParam(w, r, "cycleID")
	if !ok {
		return
	}
	result, err := h.service.Reveal(r.Context(), chi.URLParam(r, "code"), cycleID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleEvents streams the bar's events as server-sent events until the
// client goes away.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	view, err := h.service.GetBar(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	events := h.hub.Subscribe(view.Code)
	defer h.hub.Unsubscribe(view.Code, events)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, ": connected to %s\n\n", view.Code)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("failed to encode event", "type", ev.Type, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrConcurrencyConflict), errors.Is(err, storage.ErrBarExists):
		return http.StatusConflict
	}
	cat, ok := bar.CategoryOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch cat {
	case bar.CategoryValidation:
		return http.StatusBadRequest
	case bar.CategoryNotFound:
		return http.StatusNotFound
	case bar.CategoryOwnership:
		return http.StatusForbidden
	default:
		return http.StatusConflict
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		msg = "internal error"
	}
	http.Error(w, msg, status)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		http.Error(w, name+" must be a UUID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
