package server

import (
	"encoding/json"
	"net/http"

	"github.com/lumen-api/lumen/internal/params"
	"github.com/lumen-api/lumen/internal/refine"
	"github.com/lumen-api/lumen/internal/schema"
)

// renderCollection writes the index/association envelope: records keyed
// by the plural name, plus the resource metadata and the filter values
// that produced the collection.
func renderCollection(w http.ResponseWriter, res *schema.Resource, records []refine.Record, whereValues map[string]any) {
	if records == nil {
		records = []refine.Record{}
	}
	payload := map[string]any{res.CollectionName(): records}
	if meta := metaFor(res, whereValues); !meta.IsZero() {
		payload["meta"] = meta
	}
	renderPayload(w, http.StatusOK, payload)
}

// renderRecord writes the single-record envelope keyed by the singular name.
func renderRecord(w http.ResponseWriter, status int, res *schema.Resource, rec refine.Record, whereValues map[string]any) {
	payload := map[string]any{res.Name(): rec}
	if meta := metaFor(res, whereValues); !meta.IsZero() {
		payload["meta"] = meta
	}
	renderPayload(w, status, payload)
}

func renderPayload(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// metaFor builds the metadata envelope for a resource. Entries are keyed
// by the singular name so clients receiving mixed-type payloads can file
// each one correctly.
func metaFor(res *schema.Resource, whereValues map[string]any) params.Meta {
	meta := params.Meta{}
	if ro := res.ReadOnly(); len(ro) > 0 {
		meta.ReadOnly = map[string][]string{res.Name(): ro}
	}
	if nested := res.NestedResources(); len(nested) > 0 {
		meta.NestedResources = map[string][]string{res.Name(): nested}
	}
	if key := res.NaturalKey(); key != "" {
		meta.NaturalKey = map[string]string{res.Name(): key}
	}
	if len(whereValues) > 0 {
		meta.WhereValues = whereValues
	}
	return meta
}
