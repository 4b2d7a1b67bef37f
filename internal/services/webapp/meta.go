package webapp

import (
	"net/http"
	"time"

	"liftops/internal/app"
)

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	schemaVersion, _ := s.store.GetSchemaMetaValue(r.Context(), "schema_version")
	schemaName, _ := s.store.GetSchemaMetaValue(r.Context(), "schema_name")

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": time.Now().Unix(),
		"app": map[string]any{
			"version":    app.Version,
			"commit":     app.Commit,
			"build_time": app.BuildTime,
		},
		"db": map[string]any{
			"schema_version": schemaVersion,
			"schema_name":    schemaName,
			"path":           s.opts.DBPath,
		},
		"catalog": map[string]any{
			"path":              s.opts.CatalogPath,
			"version":           s.loaded.Bundle.Version,
			"question_count":    len(s.loaded.Questions),
			"critical_sections": s.loaded.Bundle.Meta.CriticalSections,
			"sha256":            s.loaded.SHA256,
		},
	})
}
