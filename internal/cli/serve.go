package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	trekerrors "github.com/matzehuels/trek/pkg/errors"
	"github.com/matzehuels/trek/pkg/storage/backend"
)

// serveCommand serves a read-only JSON API over the storage backend.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a read-only JSON API over the storage backend",
		Long: `Serve exposes stored trajectories over HTTP:

  GET /trajectories                            stored trajectory names
  GET /trajectories/{name}                     trajectory metadata
  GET /trajectories/{name}/runs                run table
  GET /trajectories/{name}/nodes               root children
  GET /trajectories/{name}/nodes/{path}        node record (dotted path)
  GET /trajectories/{name}/nodes/{path}/children`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			b, _, err := c.openBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			srv := &http.Server{
				Addr:              addr,
				Handler:           newAPIHandler(b, logger),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			logger.Info("serving trajectory API", "addr", addr)

			select {
			case <-ctx.Done():
				shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutCtx)
				return ctx.Err()
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

// =============================================================================
// API Handler
// =============================================================================

// newAPIHandler builds the read-only trajectory API router.
func newAPIHandler(b backend.Backend, logger *log.Logger) http.Handler {
	api := &apiHandler{backend: b, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/trajectories", api.listTrajectories)
	r.Route("/trajectories/{name}", func(r chi.Router) {
		r.Get("/", api.trajectoryMeta)
		r.Get("/runs", api.runTable)
		r.Get("/nodes", api.rootChildren)
		r.Get("/nodes/{path}", api.node)
		r.Get("/nodes/{path}/children", api.children)
	})
	return r
}

type apiHandler struct {
	backend backend.Backend
	logger  *log.Logger
}

func (h *apiHandler) listTrajectories(w http.ResponseWriter, r *http.Request) {
	names, err := h.backend.ListTrajectories(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	sort.Strings(names)
	h.writeJSON(w, http.StatusOK, map[string]any{"trajectories": names})
}

func (h *apiHandler) trajectoryMeta(w http.ResponseWriter, r *http.Request) {
	rec, err := h.backend.ReadNode(r.Context(), chi.URLParam(r, "name"), "")
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec.Meta)
}

func (h *apiHandler) runTable(w http.ResponseWriter, r *http.Request) {
	rec, err := h.backend.ReadNode(r.Context(), chi.URLParam(r, "name"), "")
	if err != nil {
		h.writeError(w, err)
		return
	}
	runs := []backend.RunMeta{}
	if rec.Meta != nil {
		runs = rec.Meta.Runs
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *apiHandler) node(w http.ResponseWriter, r *http.Request) {
	rec, err := h.backend.ReadNode(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "path"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *apiHandler) rootChildren(w http.ResponseWriter, r *http.Request) {
	h.listChildren(w, r, "")
}

func (h *apiHandler) children(w http.ResponseWriter, r *http.Request) {
	h.listChildren(w, r, chi.URLParam(r, "path"))
}

func (h *apiHandler) listChildren(w http.ResponseWriter, r *http.Request, fullName string) {
	name := chi.URLParam(r, "name")
	// Distinguish a childless node from a missing one.
	if _, err := h.backend.ReadNode(r.Context(), name, fullName); err != nil {
		h.writeError(w, err)
		return
	}
	children, err := h.backend.ListChildren(r.Context(), name, fullName)
	if err != nil {
		h.writeError(w, err)
		return
	}
	sort.Strings(children)
	h.writeJSON(w, http.StatusOK, map[string]any{"children": children})
}

func (h *apiHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("write response", "err", err)
	}
}

func (h *apiHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if trekerrors.Is(err, trekerrors.ErrCodeNotFound) {
		status = http.StatusNotFound
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
