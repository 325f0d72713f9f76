// Package cdn serves the integration script and its version metadata.
package cdn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/klaviyo-webflow/internal/klaviyo"
	"github.com/ignite/klaviyo-webflow/internal/metrics"
	"github.com/ignite/klaviyo-webflow/internal/pkg/httputil"
	"github.com/ignite/klaviyo-webflow/internal/pkg/logger"
	"github.com/ignite/klaviyo-webflow/internal/storage"
	"github.com/ignite/klaviyo-webflow/internal/versions"
)

const (
	scriptCacheControl  = "public, max-age=31536000, immutable"
	versionCacheControl = "public, max-age=3600, s-maxage=7200, stale-while-revalidate=86400"
	defaultScriptSize   = "15.2 KB"
	minUpdateInterval   = 86400
	usageTimeout        = 5 * time.Second
)

// UsageRecorder receives best-effort script analytics.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, version, referrer, userAgent string) error
	RecordError(ctx context.Context, version, message, referrer string) error
}

// Options wires a Handler. Store is required; the rest are optional.
type Options struct {
	Table       *versions.Table
	Store       *storage.ScriptStore
	Cache       *ScriptCache
	Usage       UsageRecorder
	Tracking    http.Handler
	APIRevision string
}

// Handler serves /script, /script/{version} and /version.
type Handler struct {
	table       *versions.Table
	store       *storage.ScriptStore
	cache       *ScriptCache
	usage       UsageRecorder
	tracking    http.Handler
	apiRevision string
	log         *logger.Entry
	wg          sync.WaitGroup
}

func NewHandler(opts Options) *Handler {
	table := opts.Table
	if table == nil {
		table = versions.Default()
	}
	rev := opts.APIRevision
	if rev == "" {
		rev = klaviyo.DefaultRevisions().Latest().Revision
	}
	return &Handler{
		table:       table,
		store:       opts.Store,
		cache:       opts.Cache,
		usage:       opts.Usage,
		tracking:    opts.Tracking,
		apiRevision: rev,
		log:         logger.Component("cdn"),
	}
}

// Routes builds the router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	methods := []string{"GET", "OPTIONS"}
	if h.tracking != nil {
		methods = append(methods, "POST")
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: methods,
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.OK(w, map[string]string{"status": "ok"})
	})
	r.Get("/script", h.HandleScript)
	r.Get("/script/{version}", h.HandleScriptVersion)
	r.Get("/version", h.HandleVersion)
	r.Handle("/metrics", metrics.Handler())
	if h.tracking != nil {
		r.Mount("/track", h.tracking)
	}
	return r
}

// Wait blocks until pending usage writes finish.
func (h *Handler) Wait() { h.wg.Wait() }

// HandleScript serves ?v= or the latest version. Unknown versions fall back
// to latest.
func (h *Handler) HandleScript(w http.ResponseWriter, r *http.Request) {
	latest, ok := h.table.Latest()
	if !ok {
		httputil.InternalError(w, errors.New("version table is empty"))
		return
	}

	v := latest
	if requested := r.URL.Query().Get("v"); requested != "" {
		found, err := h.table.ByNumber(versions.Normalize(requested))
		if err != nil {
			h.recordError(r, requested, "invalid_version", fmt.Sprintf("Invalid version requested: %s", requested))
		} else {
			v = found
		}
	}
	h.recordUsage(r, v.Version)
	h.serveScript(w, r, v)
}

// HandleScriptVersion serves one version; unknown versions are 404.
func (h *Handler) HandleScriptVersion(w http.ResponseWriter, r *http.Request) {
	requested := versions.Normalize(chi.URLParam(r, "version"))
	v, err := h.table.ByNumber(requested)
	if err != nil {
		h.recordError(r, requested, "invalid_version", fmt.Sprintf("Invalid version requested: %s", requested))
		metrics.RecordScriptRequest(metrics.SourceNotFound)
		httputil.NotFound(w, "version not found")
		return
	}
	h.recordUsage(r, v.Version)
	h.serveScript(w, r, v)
}

func (h *Handler) serveScript(w http.ResponseWriter, r *http.Request, v versions.ScriptVersion) {
	ctx := r.Context()

	if h.cache != nil {
		if body, ok := h.cache.Get(ctx, v.Version); ok {
			metrics.RecordScriptRequest(metrics.SourceCache)
			h.writeScript(w, v.Version, body)
			return
		}
	}

	script, err := h.store.Open(ctx, v)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.serveError(w, r, v, err)
			return
		}
		h.log.Info("no script files found, serving development stub", "version", v.Version)
		h.recordError(r, v.Version, "script_not_found", fmt.Sprintf("No script files found for version %s", v.Version))
		body, err := RenderStub(v.Version)
		if err != nil {
			h.serveError(w, r, v, err)
			return
		}
		metrics.RecordScriptRequest(metrics.SourceStub)
		h.writeScript(w, v.Version, body)
		return
	}

	body := InjectVersion(script.Body, v.Version)
	if h.cache != nil {
		h.cache.Set(ctx, v.Version, body)
	}
	metrics.RecordScriptRequest(script.Source)
	h.log.Debug("serving script", "version", v.Version, "path", script.Path)
	h.writeScript(w, v.Version, body)
}

func (h *Handler) writeScript(w http.ResponseWriter, version string, body []byte) {
	w.Header().Set("Cache-Control", scriptCacheControl)
	w.Header().Set("X-Script-Version", version)
	w.Header().Set("Vary", "Accept-Encoding")
	allowAnyOrigin(w)
	httputil.Script(w, body)
}

func (h *Handler) serveError(w http.ResponseWriter, r *http.Request, v versions.ScriptVersion, err error) {
	h.log.Error("error serving script", "version", v.Version, "error", err)
	h.recordError(r, v.Version, "script_serving_error", err.Error())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	fmt.Fprintf(w, "Error serving script: %v", err)
}

type availableVersion struct {
	Number string          `json:"number"`
	Status versions.Status `json:"status"`
	Date   string          `json:"date"`
}

// VersionInfo is the /version response body.
type VersionInfo struct {
	Version           string             `json:"version"`
	Status            versions.Status    `json:"status"`
	APIRevision       string             `json:"api_revision"`
	ReleaseDate       string             `json:"release_date"`
	ScriptSize        string             `json:"script_size"`
	Changes           []string           `json:"changes"`
	MinUpdateInterval int                `json:"min_update_interval"`
	AvailableVersions []availableVersion `json:"available_versions"`
}

// HandleVersion reports the latest version and lists every known one.
func (h *Handler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	latest, ok := h.table.Latest()
	if !ok {
		allowAnyOrigin(w)
		httputil.InternalError(w, errors.New("version table is empty"))
		return
	}

	size := defaultScriptSize
	if n, ok := h.store.Size(latest); ok {
		size = fmt.Sprintf("%.1f KB", float64(n)/1024)
	}

	info := VersionInfo{
		Version:           latest.Version,
		Status:            latest.Status,
		APIRevision:       h.apiRevision,
		ReleaseDate:       isoDate(latest.ReleaseDate),
		ScriptSize:        size,
		Changes:           latest.Changes,
		MinUpdateInterval: minUpdateInterval,
	}
	for _, v := range h.table.All() {
		info.AvailableVersions = append(info.AvailableVersions, availableVersion{
			Number: v.Version,
			Status: v.Status,
			Date:   v.ReleaseDate,
		})
	}

	h.recordUsage(r, latest.Version)
	w.Header().Set("Cache-Control", versionCacheControl)
	allowAnyOrigin(w)
	httputil.OK(w, info)
}

// isoDate trims a release date to YYYY-MM-DD.
func isoDate(date string) string {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, date); err == nil {
			return t.UTC().Format("2006-01-02")
		}
	}
	return date
}

func allowAnyOrigin(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func (h *Handler) recordUsage(r *http.Request, version string) {
	referrer, ua := r.Referer(), r.UserAgent()
	h.log.Info("script usage", "version", version, "referrer", referrer, "path", r.URL.Path)
	if h.usage == nil {
		return
	}
	h.async(r, func(ctx context.Context) error {
		return h.usage.RecordUsage(ctx, version, referrer, ua)
	})
}

func (h *Handler) recordError(r *http.Request, version, kind, message string) {
	referrer := r.Referer()
	h.log.Warn("script error", "type", kind, "version", version, "message", message, "referrer", referrer)
	if h.usage == nil {
		return
	}
	h.async(r, func(ctx context.Context) error {
		return h.usage.RecordError(ctx, version, kind+": "+message, referrer)
	})
}

func (h *Handler) async(r *http.Request, fn func(ctx context.Context) error) {
	parent := context.WithoutCancel(r.Context())
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(parent, usageTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			h.log.Warn("usage analytics write failed", "error", err)
		}
	}()
}
