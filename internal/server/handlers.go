package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lumen-api/lumen/internal/params"
	"github.com/lumen-api/lumen/internal/refine"
	"github.com/lumen-api/lumen/internal/schema"
)

type handler struct {
	schema   *schema.Resource
	source   refine.Source
	refiner  *refine.Refiner
	registry *schema.Registry
	logger   *zap.Logger
}

func newHandler(res *schema.Resource, source refine.Source, registry *schema.Registry, logger *zap.Logger) *handler {
	return &handler{
		schema:   res,
		source:   source,
		refiner:  refine.New(res),
		registry: registry,
		logger:   logger.With(zap.String("resource", res.Name())),
	}
}

// index serves GET /{collection}, applying the full refinement pipeline
// to the unrefined collection.
func (h *handler) index(w http.ResponseWriter, r *http.Request) {
	d, err := params.Decode(r.URL.Query())
	if err != nil {
		renderError(w, r, badRequest(err))
		return
	}

	c, err := h.refiner.RefineBy(h.source.Collection(), d)
	if err != nil {
		renderError(w, r, err)
		return
	}
	records, err := c.Records(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}

	renderCollection(w, h.schema, records, d.Filters)
}

// show serves GET /{collection}/{id}.
func (h *handler) show(w http.ResponseWriter, r *http.Request) {
	rec, err := h.source.Find(r.Context(), pathID(r))
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderRecord(w, http.StatusOK, h.schema, rec, nil)
}

// member serves GET /{collection}/{id}/{member}, dispatching to the
// association or remote-method path. Dispatch is by explicit declaration
// on the schema; anything undeclared is rejected.
func (h *handler) member(w http.ResponseWriter, r *http.Request) {
	member := strings.TrimSuffix(chi.URLParam(r, "member"), ".json")

	if refl := h.schema.Reflection(member); refl != nil && refl.Kind != schema.Remote {
		h.associated(w, r, member, refl)
		return
	}
	if h.schema.Remoted(member) {
		h.remoted(w, r, member)
		return
	}
	renderError(w, r, &refine.UnknownAssociationError{Name: member})
}

func (h *handler) associated(w http.ResponseWriter, r *http.Request, member string, refl *schema.Reflection) {
	d, err := params.Decode(r.URL.Query())
	if err != nil {
		renderError(w, r, badRequest(err))
		return
	}

	// Refinement and the envelope both describe the association's target
	// resource, not the owner: filters name target attributes, and clients
	// materialize the records with the target's metadata.
	target, ok := h.registry.Get(refl.Target)

	c, err := h.refiner.Associated(r.Context(), h.source, pathID(r), member, target, d)
	if err != nil {
		renderError(w, r, err)
		return
	}
	records, err := c.Records(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}

	if !ok {
		renderPayload(w, http.StatusOK, map[string]any{member: records})
		return
	}
	renderCollection(w, target, records, d.Filters)
}

func (h *handler) remoted(w http.ResponseWriter, r *http.Request, member string) {
	result, err := h.refiner.Remoted(r.Context(), h.source, pathID(r), member)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderPayload(w, http.StatusOK, map[string]any{member: result})
}

// create serves POST /{collection}.
func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	writer, ok := h.source.(Writer)
	if !ok {
		renderError(w, r, errReadOnlyBackend)
		return
	}

	attrs, err := h.decodeBody(r)
	if err != nil {
		renderError(w, r, badRequest(err))
		return
	}

	rec, err := writer.Create(r.Context(), attrs)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderRecord(w, http.StatusCreated, h.schema, rec, nil)
}

// update serves PATCH and PUT /{collection}/{id}.
func (h *handler) update(w http.ResponseWriter, r *http.Request) {
	writer, ok := h.source.(Writer)
	if !ok {
		renderError(w, r, errReadOnlyBackend)
		return
	}

	attrs, err := h.decodeBody(r)
	if err != nil {
		renderError(w, r, badRequest(err))
		return
	}

	rec, err := writer.Update(r.Context(), pathID(r), attrs)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderRecord(w, http.StatusOK, h.schema, rec, nil)
}

// destroy serves DELETE /{collection}/{id}.
func (h *handler) destroy(w http.ResponseWriter, r *http.Request) {
	writer, ok := h.source.(Writer)
	if !ok {
		renderError(w, r, errReadOnlyBackend)
		return
	}

	if err := writer.Delete(r.Context(), pathID(r)); err != nil {
		renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody parses a JSON body, unwrapping the singular root key when
// the client sends one.
func (h *handler) decodeBody(r *http.Request) (refine.Record, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	var attrs map[string]any
	if err := json.Unmarshal(body, &attrs); err != nil {
		return nil, err
	}
	if wrapped, ok := attrs[h.schema.Name()].(map[string]any); ok && len(attrs) == 1 {
		return wrapped, nil
	}
	return attrs, nil
}

func pathID(r *http.Request) string {
	return strings.TrimSuffix(chi.URLParam(r, "id"), ".json")
}
