// Package handler provides the HTTP handlers for the items service.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/stevemurr/flatfile-items/idgen"
	"github.com/stevemurr/flatfile-items/record"
	"github.com/stevemurr/flatfile-items/store"
)

// MaxBodyBytes bounds POST and PUT request bodies.
const MaxBodyBytes = 1 << 20

// msgNotFound is the error body for unknown ids.
const msgNotFound = "Item not found"

var (
	errNotFound  = errors.New("item not found")
	errIDChanged = errors.New("id cannot be changed")
	errNotObject = errors.New("request body must be a JSON object")
)

// Options configures a Handler. Zero values select defaults.
type Options struct {
	// NewID generates identifiers for created items. Defaults to idgen.UUID.
	NewID  idgen.Func
	Logger *log.Logger
}

// Handler holds the server dependencies and registers routes.
type Handler struct {
	store  store.Store
	newID  idgen.Func
	logger *log.Logger
	mux    *http.ServeMux
}

// New creates a Handler and wires up all routes.
func New(s store.Store, opts Options) *Handler {
	if opts.NewID == nil {
		opts.NewID = idgen.UUID()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	h := &Handler{store: s, newID: opts.NewID, logger: opts.Logger, mux: http.NewServeMux()}
	h.routes()
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	h.mux.HandleFunc("GET /health", h.health)

	h.mux.HandleFunc("GET /items", h.listItems)
	h.mux.HandleFunc("GET /items/{id}", h.getItem)
	h.mux.HandleFunc("POST /items", h.createItem)
	h.mux.HandleFunc("PUT /items/{id}", h.updateItem)
	h.mux.HandleFunc("DELETE /items/{id}", h.deleteItem)
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// readObject decodes the request body, which must be a single JSON object.
func readObject(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after JSON value")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	return obj, nil
}

func (h *Handler) badBody(w http.ResponseWriter, err error) {
	if errors.Is(err, errNotObject) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
}

// fail maps store errors onto responses. Anything that is not a known
// client error is logged and reported as a generic 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errNotFound):
		writeError(w, http.StatusNotFound, msgNotFound)
	default:
		h.logger.Printf("handler: %s %s: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ---------- status ----------

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	status := store.Health{Status: "ok"}
	if hc, ok := h.store.(store.HealthChecker); ok {
		status = hc.Health()
	}
	writeJSON(w, http.StatusOK, status)
}

// ---------- items ----------

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	var items record.Collection
	err := h.store.View(func(c record.Collection) error {
		items = c
		return nil
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var item record.Record
	err := h.store.View(func(c record.Collection) error {
		found, ok := c.Find(id)
		if !ok {
			return errNotFound
		}
		item = found
		return nil
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	body, err := readObject(w, r)
	if err != nil {
		h.badBody(w, err)
		return
	}

	var created record.Record
	err = h.store.Update(func(c record.Collection) (record.Collection, error) {
		id := h.newID()
		for c.Has(id) {
			id = h.newID()
		}
		created = record.New(id, body)
		return c.Append(created), nil
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	body, err := readObject(w, r)
	if err != nil {
		h.badBody(w, err)
		return
	}
	if v, ok := body[record.IDKey]; ok && v != id {
		writeError(w, http.StatusBadRequest, errIDChanged.Error())
		return
	}

	var updated record.Record
	err = h.store.Update(func(c record.Collection) (record.Collection, error) {
		i := c.Index(id)
		if i < 0 {
			return nil, errNotFound
		}
		c, updated = c.ReplaceAt(i, body)
		return c, nil
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := h.store.Update(func(c record.Collection) (record.Collection, error) {
		next, removed := c.Remove(id)
		if !removed {
			return nil, errNotFound
		}
		return next, nil
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
