package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/forPelevin/nledit/internal/editor"
	"github.com/forPelevin/nledit/internal/lineage"
	"github.com/forPelevin/nledit/internal/ports"
	"github.com/forPelevin/nledit/internal/types"
	"github.com/forPelevin/nledit/internal/usecase"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	r.Post("/resolve", resolveHandler(cfg))

	r.Get("/videos/{id}", getVideoHandler(cfg))
	r.Get("/videos/{id}/history", historyHandler(cfg))
	r.Post("/videos/{id}/commands", commandHandler(cfg))
	r.Post("/videos/{id}/undo", undoHandler(cfg))
	r.Post("/videos/{id}/redo", redoHandler(cfg))

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func commandHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CommandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		req.Command = strings.TrimSpace(req.Command)
		if req.Command == "" {
			WriteError(w, http.StatusBadRequest, "command is required", "BAD_REQUEST")
			return
		}
		if req.IdempotencyKey == "" {
			req.IdempotencyKey = r.Header.Get("Idempotency-Key")
		}
		in := usecase.EditInput{
			VideoID:        chi.URLParam(r, "id"),
			Command:        req.Command,
			UseLLM:         useLLM(req.UseLLM),
			IdempotencyKey: req.IdempotencyKey,
		}

		if async := r.URL.Query().Get("async"); async == "1" || async == "true" {
			key, err := cfg.Service.Enqueue(r.Context(), in)
			if err != nil {
				writeServiceError(w, cfg.Logger, err)
				return
			}
			WriteJSON(w, http.StatusAccepted, QueuedResponse{Status: "queued", IdempotencyKey: key})
			return
		}

		res, err := cfg.Service.Edit(r.Context(), in)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		status := http.StatusCreated
		if res.Replayed {
			status = http.StatusOK
		}
		WriteJSON(w, status, EditToResponse(res))
	}
}

func resolveHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ResolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if strings.TrimSpace(req.Command) == "" {
			WriteError(w, http.StatusBadRequest, "command is required", "BAD_REQUEST")
			return
		}
		res, err := cfg.Service.Resolve(r.Context(), usecase.ResolveInput{
			VideoID:  req.VideoID,
			Command:  req.Command,
			Duration: req.Duration,
			UseLLM:   useLLM(req.UseLLM),
		})
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, ResolveToResponse(res))
	}
}

func getVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		v, err := cfg.Service.Video(r.Context(), id)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		kids, err := cfg.Service.Children(r.Context(), id)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if kids == nil {
			kids = []types.Video{}
		}
		root, err := cfg.Service.Root(r.Context(), id)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, VideoResponse{Video: v, RootID: root.ID, Children: kids})
	}
}

func historyHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		steps, err := cfg.Service.History(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, HistoryResponse{Steps: steps})
	}
}

func undoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := cfg.Service.Undo(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, v)
	}
}

func redoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := cfg.Service.Redo(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, v)
	}
}

// useLLM defaults an omitted use_llm to true.
func useLLM(v *bool) bool { return v == nil || *v }

func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var renderErr *editor.RenderError
	switch {
	case errors.Is(err, ports.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, usecase.ErrNotUnderstood):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "UNRESOLVED")
	case errors.Is(err, types.ErrInvalidAction):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "INVALID_ACTION")
	case errors.Is(err, lineage.ErrAtRoot), errors.Is(err, lineage.ErrNoRedo):
		WriteError(w, http.StatusConflict, err.Error(), "CONFLICT")
	case errors.Is(err, ports.ErrKeyConflict):
		WriteError(w, http.StatusConflict, err.Error(), "IDEMPOTENCY_CONFLICT")
	case errors.Is(err, usecase.ErrQueueDisabled):
		WriteError(w, http.StatusServiceUnavailable, err.Error(), "QUEUE_DISABLED")
	case errors.As(err, &renderErr):
		logger.Error("render failed", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, "render failed", "RENDER_FAILED")
	default:
		logger.Error("request failed", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}
