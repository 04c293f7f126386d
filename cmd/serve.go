package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/monitoring"
	"github.com/sells-group/outreach-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST server and background reply sweep",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		// Periodic reply sweep. The coordinator serializes overlapping
		// sweeps itself, so a slow run and the schedule cannot collide.
		sched := cron.New()
		if _, err := sched.AddFunc(cfg.Pipeline.ReconcileSchedule, func() {
			if _, err := env.Coord.Reconcile(ctx); err != nil {
				zap.L().Error("scheduled sweep failed", zap.Error(err))
			}
		}); err != nil {
			return eris.Wrap(err, "parse reconcile schedule")
		}
		sched.Start()
		defer sched.Stop()

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(env.Collector, env.Alerter, cfg.Monitoring)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func newRouter(env *pipelineEnv) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/process-bbox", handleProcessBbox(env))
	r.Get("/buildings", handleListBuildings(env))
	r.Get("/buildings/{id}", handleGetBuilding(env))
	r.Post("/approve-building", handleApproveBuilding(env))
	r.Post("/retry-building", handleRetryBuilding(env))
	r.Delete("/buildings/{id}", handleDeleteBuilding(env))
	r.Get("/email-status", handleEmailStatus(env))
	r.Get("/status/{identityKey}", handleStatus(env))
	r.Get("/metrics", handleMetrics(env))

	return r
}

// handleProcessBbox accepts one or more areas and starts discovery in
// the background, replying 202 immediately. Validation failures are the
// only synchronous rejection.
func handleProcessBbox(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Areas []model.AreaRequest `json:"areas"`
		}
		// Single-area bodies are accepted for convenience.
		var single model.AreaRequest
		if err := decodeEither(r, &req, &single); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.Areas) == 0 {
			req.Areas = []model.AreaRequest{single}
		}

		for _, a := range req.Areas {
			if err := a.Validate(); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}

		go func() {
			// Detached from the request context so the batch survives
			// the 202 response.
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			result, err := env.Coord.ProcessAreas(ctx, req.Areas)
			if err != nil {
				zap.L().Error("bbox processing failed", zap.Error(err))
				return
			}
			zap.L().Info("bbox processing complete",
				zap.Int("created", result.Created),
				zap.Int("updated", result.Updated),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]any{
			"status": "processing",
			"count":  len(req.Areas),
		})
	}
}

func handleListBuildings(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.BuildingFilter{Limit: 200}
		if s := r.URL.Query().Get("state"); s != "" {
			filter.States = []model.BuildingState{model.BuildingState(s)}
		}
		buildings, err := env.Store.ListBuildings(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list buildings failed")
			return
		}
		if buildings == nil {
			buildings = []model.Building{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"buildings": buildings})
	}
}

func handleGetBuilding(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := env.Store.GetBuilding(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				writeError(w, http.StatusNotFound, "building not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "get building failed")
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

func handleApproveBuilding(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			BuildingID string `json:"building_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BuildingID == "" {
			writeError(w, http.StatusBadRequest, "building_id is required")
			return
		}

		b, err := env.Coord.Approve(r.Context(), req.BuildingID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				writeError(w, http.StatusNotFound, "building not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "approve failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "processing",
			"building_id": b.ID,
		})
	}
}

func handleRetryBuilding(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			BuildingID string `json:"building_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BuildingID == "" {
			writeError(w, http.StatusBadRequest, "building_id is required")
			return
		}

		b, err := env.Coord.Retry(r.Context(), req.BuildingID)
		if err != nil {
			var ve *model.ValidationError
			switch {
			case errors.Is(err, model.ErrNotFound):
				writeError(w, http.StatusNotFound, "building not found")
			case errors.As(err, &ve):
				writeError(w, http.StatusConflict, ve.Error())
			default:
				writeError(w, http.StatusInternalServerError, "retry failed")
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "processing",
			"building_id": b.ID,
		})
	}
}

func handleDeleteBuilding(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := env.Coord.Delete(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				writeError(w, http.StatusNotFound, "building not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "delete failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// handleEmailStatus runs a synchronous reply sweep and reports it.
func handleEmailStatus(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := env.Coord.Reconcile(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "sweep failed")
			return
		}
		// One thread per outreach email, so threads checked is the
		// number of buildings swept.
		writeJSON(w, http.StatusOK, map[string]any{
			"buildings_checked": result.ThreadsChecked,
			"replies_found":     result.RepliesFound,
		})
	}
}

func handleStatus(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, ok := env.Coord.Status(chi.URLParam(r, "identityKey"))
		if !ok {
			writeError(w, http.StatusNotFound, "unknown identity key")
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func handleMetrics(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := env.Collector.Collect(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "collect metrics failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"snapshot": snap,
			"breakers": env.Coord.BreakerStates(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeEither decodes the body into multi, falling back to single when
// the areas wrapper is absent.
func decodeEither(r *http.Request, multi, single any) error {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, multi); err == nil {
		return json.Unmarshal(raw, single)
	}
	return json.Unmarshal(raw, single)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
