package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/service/scheduling"
	"agenda/backend/internal/store"
)

// Server exposes the scheduling core as a JSON API for the clinic
// front-end.
type Server struct {
	svc schedulingService
	log *slog.Logger
}

type schedulingService interface {
	ExpandAndCheck(ctx context.Context, in scheduling.Draft) (scheduling.Proposal, error)
	ResolveAndCommit(ctx context.Context, p scheduling.Proposal, strategy scheduling.ResolutionStrategy) (scheduling.CommitOutcome, error)
	EditSeries(ctx context.Context, in scheduling.EditInput) ([]uuid.UUID, error)
	DeleteSeries(ctx context.Context, in scheduling.DeleteInput) ([]uuid.UUID, error)
	ListAgenda(ctx context.Context, practitionerID string, windowStart, windowEnd time.Time) ([]domain.OccupiedSlot, error)
}

func NewServer(svc schedulingService, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		svc: svc,
		log: log.With(slog.String("component", "api.scheduling")),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/scheduling/proposals", s.handleExpandAndCheck)
		r.Post("/scheduling/commits", s.handleResolveAndCommit)
		r.Post("/scheduling/series/edit", s.handleEditSeries)
		r.Post("/scheduling/series/delete", s.handleDeleteSeries)
		r.Get("/practitioners/{practitionerID}/agenda", s.handleListAgenda)
	})

	return r
}

func (s *Server) handleExpandAndCheck(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(slog.String("handler", "ExpandAndCheck"))

	var payload draftPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_json"))
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}

	proposal, err := s.svc.ExpandAndCheck(r.Context(), payload.toDraft())
	if err != nil {
		s.writeError(w, log, err)
		return
	}

	log.Info(
		"proposal checked",
		slog.String("practitioner_id", proposal.Draft.PractitionerID),
		slog.Int("instances", len(proposal.Instances)),
		slog.Int("conflicts", proposal.Conflicts.Total()),
	)
	writeJSON(w, http.StatusOK, toProposalPayload(proposal))
}

func (s *Server) handleResolveAndCommit(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(slog.String("handler", "ResolveAndCommit"))

	var payload commitRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_json"))
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}

	proposal, err := payload.Proposal.toProposal()
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_proposal"))
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	outcome, err := s.svc.ResolveAndCommit(r.Context(), proposal, scheduling.ResolutionStrategy(payload.Strategy))
	if err != nil {
		s.writeError(w, log, err)
		return
	}

	log.Info(
		"batch committed",
		slog.String("practitioner_id", proposal.Draft.PractitionerID),
		slog.String("state", string(outcome.State)),
		slog.Int("created", len(outcome.CreatedIDs)),
		slog.Int("cancelled", len(outcome.CancelledIDs)),
	)
	writeJSON(w, http.StatusOK, commitResponse{
		State:        string(outcome.State),
		CreatedIDs:   idStrings(outcome.CreatedIDs),
		CancelledIDs: idStrings(outcome.CancelledIDs),
	})
}

func (s *Server) handleEditSeries(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(slog.String("handler", "EditSeries"))

	var payload editRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_json"))
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}

	targetID, err := uuid.Parse(payload.TargetID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "target_id must be a UUID"})
		return
	}

	affected, err := s.svc.EditSeries(r.Context(), scheduling.EditInput{
		Kind:     domain.Kind(payload.Kind),
		TargetID: targetID,
		Scope:    scheduling.MutationScope(payload.Scope),
		Patch:    payload.Patch.toPatch(),
	})
	if err != nil {
		s.writeError(w, log, err)
		return
	}

	log.Info("series edited", slog.String("target_id", targetID.String()), slog.Int("affected", len(affected)))
	writeJSON(w, http.StatusOK, affectedResponse{AffectedIDs: idStrings(affected)})
}

func (s *Server) handleDeleteSeries(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(slog.String("handler", "DeleteSeries"))

	var payload deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_json"))
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}

	targetID, err := uuid.Parse(payload.TargetID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "target_id must be a UUID"})
		return
	}

	affected, err := s.svc.DeleteSeries(r.Context(), scheduling.DeleteInput{
		Kind:     domain.Kind(payload.Kind),
		TargetID: targetID,
		Scope:    scheduling.MutationScope(payload.Scope),
	})
	if err != nil {
		s.writeError(w, log, err)
		return
	}

	log.Info("series deleted", slog.String("target_id", targetID.String()), slog.Int("affected", len(affected)))
	writeJSON(w, http.StatusOK, affectedResponse{AffectedIDs: idStrings(affected)})
}

func (s *Server) handleListAgenda(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(slog.String("handler", "ListAgenda"))

	practitionerID := chi.URLParam(r, "practitionerID")
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_from"))
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "from must be RFC 3339"})
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_to"))
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "to must be RFC 3339"})
		return
	}

	slots, err := s.svc.ListAgenda(r.Context(), practitionerID, from, to)
	if err != nil {
		s.writeError(w, log, err)
		return
	}

	log.Debug("agenda listed", slog.String("practitioner_id", practitionerID), slog.Int("count", len(slots)))
	writeJSON(w, http.StatusOK, agendaResponse{Slots: toSlotPayloads(slots)})
}

// writeError maps the scheduling error taxonomy onto HTTP statuses.
// Validation and conflict states carry actionable bodies; anything else is
// reported as a generic server failure.
func (s *Server) writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	var fieldErrs scheduling.FieldErrors
	switch {
	case errors.As(err, &fieldErrs):
		log.Warn("validation failed", slog.Any("err", err))
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "validation failed", Fields: fieldErrs})
	case errors.Is(err, domain.ErrInvalidInterval), errors.Is(err, domain.ErrUnsupportedPattern):
		log.Warn("invalid request", slog.Any("err", err))
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
	case errors.Is(err, scheduling.ErrConflictPending):
		log.Info("conflict resolution pending")
		writeJSON(w, http.StatusConflict, errorBody{Error: "existing items conflict with this operation. Choose keep_existing, cancel_existing or abort."})
	case errors.Is(err, store.ErrConflict):
		log.Info("agenda conflict")
		writeJSON(w, http.StatusConflict, errorBody{Error: "That time is already taken on this agenda. Pick a different slot."})
	case errors.Is(err, scheduling.ErrNotRecurring):
		log.Warn("scope mismatch", slog.Any("err", err))
		writeJSON(w, http.StatusConflict, errorBody{Error: "this item is not recurring; only a single-occurrence change is possible"})
	case errors.Is(err, store.ErrNotFound):
		log.Info("not found")
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	default:
		log.Error("request failed", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug(
			"request handled",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
