package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mesh-intelligence/obay/internal/gateway"
	"github.com/mesh-intelligence/obay/internal/query"
	"github.com/mesh-intelligence/obay/internal/schema"
	"github.com/mesh-intelligence/obay/pkg/types"
)

// kindHandler serves one record kind's routes.
type kindHandler struct {
	server *Server
	g      *gateway.Gateway
}

func (h *kindHandler) respond(w http.ResponseWriter, r *http.Request, env types.Envelope, err error) {
	if err != nil {
		h.server.writeError(w, r, err)
		return
	}
	if !env.Found {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *kindHandler) list(w http.ResponseWriter, r *http.Request) {
	env, err := h.g.Get(r.Context(), query.FromValues(r.URL.Query()))
	h.respond(w, r, env, err)
}

func (h *kindHandler) get(w http.ResponseWriter, r *http.Request) {
	env, err := h.g.Find(r.Context(), types.FilterRequest{ID: chi.URLParam(r, "id"), WantResult: true})
	h.respond(w, r, env, err)
}

func (h *kindHandler) create(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.decode(w, r)
	if !ok {
		return
	}
	env, err := h.g.Create(r.Context(), doc)
	h.respond(w, r, env, err)
}

// update replaces the record at the path id. A body without an id takes
// the path id; a body whose id differs is rejected.
func (h *kindHandler) update(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.decode(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if raw, present := doc[types.IDField]; !present || raw == nil {
		doc[types.IDField] = id
	} else if doc.ID() != id {
		h.server.writeError(w, r, schema.NewValidationError(h.g.Kind().Name, types.IDField,
			fmt.Sprintf("id %v does not match path id %q", raw, id)))
		return
	}
	env, err := h.g.Update(r.Context(), doc)
	h.respond(w, r, env, err)
}

func (h *kindHandler) delete(w http.ResponseWriter, r *http.Request) {
	env, err := h.g.Delete(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, env, err)
}

func (h *kindHandler) decode(w http.ResponseWriter, r *http.Request) (types.Record, bool) {
	var doc types.Record
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&doc); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Err: "invalid JSON body: " + err.Error()})
		return nil, false
	}
	if doc == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Err: "invalid JSON body: expected an object"})
		return nil, false
	}
	return doc, true
}
