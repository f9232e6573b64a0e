// Package ingest is the plain-HTTP entry point into the hub: log lines are
// republished on the log channel, everything else goes to the record store.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/switchboard/switchboard/internal/bus"
	"github.com/switchboard/switchboard/internal/hub"
	"github.com/switchboard/switchboard/internal/schema"
	"github.com/switchboard/switchboard/internal/store"
)

const (
	defaultStoreTimeout = 10 * time.Second
	defaultMaxBodyBytes = 1 << 20
)

// Publisher is the slice of the exchange the handler needs.
type Publisher interface {
	Publish(channel string, payload any)
}

// Options tunes a Handler. Zero values fall back to defaults.
type Options struct {
	StoreTimeout   time.Duration
	MaxBodyBytes   int64
	AllowedOrigins []string
}

// Handler serves POST / ingestion and the health check.
type Handler struct {
	store schema.Store
	pub   Publisher
	opts  Options
}

func NewHandler(st schema.Store, pub Publisher, opts Options) *Handler {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Handler{store: st, pub: pub, opts: opts}
}

// Register mounts the ingestion routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /{$}", h.cors(h.HandleIngest))
	mux.HandleFunc("OPTIONS /{$}", h.cors(h.HandlePreflight))
	mux.HandleFunc("GET /health-check", h.HandleHealth)
}

// HandleHealth always answers 200 while the process is serving.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}

func (h *Handler) HandlePreflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// HandleIngest decodes the body and dispatches on "event" and "op".
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)

	body, err := decodeBody(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.sendError(w, http.StatusRequestEntityTooLarge, "request body too large (max %d bytes)", tooLarge.Limit)
			return
		}
		h.sendError(w, http.StatusBadRequest, "%v", err)
		return
	}

	if body["event"] == bus.ChannelLog {
		h.pub.Publish(bus.ChannelLog, body)
		h.writeJSON(w, map[string]string{"code": "200"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.StoreTimeout)
	defer cancel()

	switch body["op"] {
	case "get":
		h.get(ctx, w, body)
	case "list":
		h.list(ctx, w, body)
	default:
		h.add(ctx, w, body)
	}
}

func (h *Handler) get(ctx context.Context, w http.ResponseWriter, body map[string]any) {
	id, _ := body["id"].(string)
	rec, err := h.store.Get(ctx, id)
	if err != nil {
		h.storeError(w, "get", err)
		return
	}
	if rec == nil {
		h.writeJSON(w, map[string]any{})
		return
	}
	h.writeJSON(w, rec)
}

func (h *Handler) list(ctx context.Context, w http.ResponseWriter, body map[string]any) {
	var query map[string]any
	switch q := body["query"].(type) {
	case nil:
	case map[string]any:
		query = q
	default:
		h.sendError(w, http.StatusBadRequest, "query must be an object")
		return
	}
	fields, err := stringList(body["fields"])
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "fields: %v", err)
		return
	}

	records, err := h.store.List(ctx, query, fields)
	if err != nil {
		h.storeError(w, "list", err)
		return
	}
	if records == nil {
		records = []schema.Record{}
	}
	h.writeJSON(w, records)
}

func (h *Handler) add(ctx context.Context, w http.ResponseWriter, body map[string]any) {
	res, err := h.store.Add(ctx, body)
	if err != nil {
		h.storeError(w, "add", err)
		return
	}
	h.writeJSON(w, res)
	if !res.OK() {
		slog.Debug("ingest: record rejected", "reason", res.Error)
		return
	}

	h.pub.Publish(bus.ChannelReport, hub.ReportMessage{
		Type: hub.ReportAdd,
		Data: h.store.Project(res.Record),
	})
}

func (h *Handler) storeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, store.ErrInvalidQuery) {
		slog.Debug("ingest: query rejected", "op", op, "err", err)
		h.sendError(w, http.StatusBadRequest, "%s failed: %v", op, err)
		return
	}
	slog.Error("ingest: store failed", "op", op, "err", err)
	status := http.StatusInternalServerError
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	h.sendError(w, status, "%s failed: %v", op, err)
}

func (h *Handler) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if origin := h.allowOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "POST")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if origin != "*" {
				w.Header().Add("Vary", "Origin")
			}
		}
		next(w, r)
	}
}

func (h *Handler) allowOrigin(origin string) string {
	if len(h.opts.AllowedOrigins) == 0 {
		return "*"
	}
	for _, o := range h.opts.AllowedOrigins {
		if o == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}

func (h *Handler) sendError(w http.ResponseWriter, status int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"error": fmt.Sprintf(format, args...),
	}); err != nil {
		slog.Warn("ingest: writing error response", "err", err, "status", status)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		slog.Warn("ingest: writing response", "err", err)
	}
}

// decodeBody reads a JSON object or an urlencoded form. An empty body is an
// empty object.
func decodeBody(r *http.Request) (map[string]any, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return nil, fmt.Errorf("malformed form body: %w", err)
		}
		return formToMap(values), nil
	}

	if len(strings.TrimSpace(string(raw))) == 0 {
		return map[string]any{}, nil
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("malformed JSON body: %w", err)
	}
	if body == nil {
		return nil, errors.New("body must be a JSON object")
	}
	return body, nil
}

// formToMap keeps single values as strings and repeated keys as lists.
func formToMap(values url.Values) map[string]any {
	out := make(map[string]any, len(values))
	for k, vs := range values {
		if len(vs) == 1 {
			out[k] = vs[0]
			continue
		}
		list := make([]any, len(vs))
		for i, v := range vs {
			list[i] = v
		}
		out[k] = list
	}
	return out
}

func stringList(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if t == "" {
			return nil, nil
		}
		return strings.Split(t, ","), nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected strings, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
}
