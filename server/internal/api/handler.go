package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/livepaste/livepaste/pkg/snippet"
	"github.com/livepaste/livepaste/server/internal/store"
)

const (
	// DefaultMaxBodyBytes bounds request bodies; images travel inline.
	DefaultMaxBodyBytes = 16 << 20

	generateAttempts = 10
)

// SnippetStore is the persistence the HTTP handlers need.
type SnippetStore interface {
	Get(ctx context.Context, slug string) (snippet.Snippet, error)
	ExistsLive(ctx context.Context, slug string) (bool, error)
	Insert(ctx context.Context, sn snippet.Snippet) error
	UpdateFields(ctx context.Context, slug string, f store.Fields) error
	Delete(ctx context.Context, slug string) error
}

// RoomServer runs a WebSocket session for a slug. *ws.Handler satisfies it.
type RoomServer interface {
	Serve(w http.ResponseWriter, r *http.Request, slug string)
}

// Options wires the optional parts of the router.
type Options struct {
	// TTL is the lifetime given to new snippets.
	TTL time.Duration

	// FrontendURL is the origin admitted by CORS. Empty disables CORS headers.
	FrontendURL string

	// Rooms serves /ws/{slug}. Nil leaves the route unregistered.
	Rooms RoomServer

	// Metrics serves /metrics, wrapped by MetricsAuth when set.
	Metrics     http.Handler
	MetricsAuth func(http.Handler) http.Handler

	MaxBodyBytes int64
}

// Handler holds the route dependencies.
type Handler struct {
	store SnippetStore
	opts  Options
	now   func() time.Time // injectable for deterministic tests
	gen   func() string
}

// New creates the router wired to st.
func New(st SnippetStore, opts Options) http.Handler {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	h := &Handler{store: st, opts: opts, now: time.Now, gen: snippet.Generate}
	return h.routes()
}

func (h *Handler) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger)
	if h.opts.FrontendURL != "" {
		r.Use(corsFor(h.opts.FrontendURL))
	}

	r.Get("/health", h.health)
	r.Route("/api", func(r chi.Router) {
		r.Use(gzipJSON)
		r.Get("/check/{slug}", h.checkSlug)
		r.Post("/snippets", h.createSnippet)
		r.Get("/snippets/{slug}", h.getSnippet)
		r.Patch("/snippets/{slug}", h.patchSnippet)
		r.Delete("/snippets/{slug}", h.deleteSnippet)
	})

	if h.opts.Rooms != nil {
		r.Get("/ws/{slug}", func(w http.ResponseWriter, r *http.Request) {
			h.opts.Rooms.Serve(w, r, chi.URLParam(r, "slug"))
		})
	}
	if h.opts.Metrics != nil {
		m := h.opts.Metrics
		if h.opts.MetricsAuth != nil {
			m = h.opts.MetricsAuth(m)
		}
		r.Method(http.MethodGet, "/metrics", m)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// --- route handlers ---------------------------------------------------------

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, map[string]bool{"ok": true})
}

// checkSlug reports whether the sanitized form of {slug} could be claimed.
// Invalid slugs are reported as unavailable rather than as errors.
func (h *Handler) checkSlug(w http.ResponseWriter, r *http.Request) {
	slug := snippet.Sanitize(chi.URLParam(r, "slug"))
	resp := SlugCheck{Slug: slug}

	if snippet.Validate(slug) == nil {
		taken, err := h.store.ExistsLive(r.Context(), slug)
		if err != nil {
			h.internal(w, "check", err)
			return
		}
		resp.Available = !taken
	}
	jsonResp(w, http.StatusOK, resp)
}

func (h *Handler) createSnippet(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !h.decode(w, r, &req) {
		return
	}
	for _, img := range req.Images {
		if img.ID == "" {
			jsonErr(w, http.StatusBadRequest, "every image needs an id")
			return
		}
	}

	now := h.now().UTC()
	sn := snippet.Snippet{
		Content:   req.Content,
		Language:  req.Language,
		Images:    req.Images,
		CreatedAt: now,
		ExpiresAt: now.Add(h.opts.TTL),
	}

	if raw := strings.TrimSpace(req.Slug); raw != "" {
		sn.Slug = snippet.Sanitize(raw)
		if err := snippet.Validate(sn.Slug); err != nil {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		err := h.store.Insert(r.Context(), sn)
		if errors.Is(err, store.ErrConflict) {
			jsonErr(w, http.StatusConflict, "slug already taken")
			return
		}
		if err != nil {
			h.internal(w, "create", err)
			return
		}
	} else if !h.insertGenerated(w, r, &sn) {
		return
	}

	slog.Info("api: snippet created", "slug", sn.Slug)
	jsonResp(w, http.StatusCreated, CreateResponse{Slug: sn.Slug, ExpiresAt: sn.ExpiresAt})
}

// insertGenerated tries fresh random slugs until one inserts.
func (h *Handler) insertGenerated(w http.ResponseWriter, r *http.Request, sn *snippet.Snippet) bool {
	for i := 0; i < generateAttempts; i++ {
		sn.Slug = h.gen()
		err := h.store.Insert(r.Context(), *sn)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			h.internal(w, "create", err)
			return false
		}
		return true
	}
	slog.Error("api: could not generate a free slug", "attempts", generateAttempts)
	jsonErr(w, http.StatusServiceUnavailable, "could not allocate a slug, try again")
	return false
}

func (h *Handler) getSnippet(w http.ResponseWriter, r *http.Request) {
	sn, err := h.store.Get(r.Context(), chi.URLParam(r, "slug"))
	if errors.Is(err, store.ErrNotFound) {
		jsonErr(w, http.StatusNotFound, "snippet not found or expired")
		return
	}
	if err != nil {
		h.internal(w, "get", err)
		return
	}
	jsonResp(w, http.StatusOK, sn)
}

func (h *Handler) patchSnippet(w http.ResponseWriter, r *http.Request) {
	var req PatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Images != nil {
		for _, img := range *req.Images {
			if img.ID == "" {
				jsonErr(w, http.StatusBadRequest, "every image needs an id")
				return
			}
		}
	}

	err := h.store.UpdateFields(r.Context(), chi.URLParam(r, "slug"), store.Fields{
		Content:  req.Content,
		Language: req.Language,
		Images:   req.Images,
	})
	if errors.Is(err, store.ErrNotFound) {
		jsonErr(w, http.StatusNotFound, "snippet not found or expired")
		return
	}
	if err != nil {
		h.internal(w, "patch", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteSnippet(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), chi.URLParam(r, "slug")); err != nil {
		h.internal(w, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			jsonErr(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (h *Handler) internal(w http.ResponseWriter, op string, err error) {
	slog.Error("api: store failed", "op", op, "err", err)
	jsonErr(w, http.StatusInternalServerError, "database error")
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
