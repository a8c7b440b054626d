package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/inkwell/hostkit/pkg/httputil"
	"github.com/inkwell/hostkit/pkg/manifest"
	"github.com/inkwell/hostkit/pkg/marketplace"
)

// ResolveRequest is the body of POST /api/v1/resolve.
type ResolveRequest struct {
	PluginID string `json:"plugin_id"`
	Version  string `json:"version,omitempty"`
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.PluginID == "" {
		httputil.WriteBadRequest(w, "plugin_id is required")
		return
	}
	s.writeResolution(w, r, req.PluginID, req.Version)
}

func (s *Server) resolvePlugin(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.writeResolution(w, r, id, r.URL.Query().Get("version"))
}

func (s *Server) writeResolution(w http.ResponseWriter, r *http.Request, id, version string) {
	result, err := s.resolver.Resolve(r.Context(), id, version)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

func (s *Server) dependencyTree(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	depth := httputil.ParseQueryInt(r, "depth", s.maxTreeDepth)

	tree := s.resolver.BuildDependencyTree(id, depth)
	if tree == nil {
		httputil.WriteNotFoundError(w, "plugin "+id+" is not installed")
		return
	}
	httputil.WriteSuccess(w, tree)
}

func (s *Server) dependents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	httputil.WriteSuccess(w, map[string]interface{}{
		"plugin_id":  id,
		"dependents": s.resolver.GetDependents(id),
	})
}

func (s *Server) uninstallable(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	httputil.WriteSuccess(w, s.resolver.CanUninstall(id))
}

func (s *Server) allConflicts(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, s.detector.DetectAll())
}

func (s *Server) pluginConflicts(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if s.detector.Registration(id) == nil {
		httputil.WriteNotFoundError(w, "plugin "+id+" is not registered")
		return
	}
	httputil.WriteSuccess(w, s.detector.DetectForPlugin(id))
}

func (s *Server) listPlugins(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")
	limit := httputil.ParseQueryInt(r, "limit", 50)
	offset := httputil.ParseQueryInt(r, "offset", 0)

	entries, err := s.catalog.ListPlugins(r.Context(), search, limit, offset)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if entries == nil {
		entries = []marketplace.CatalogEntry{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"plugins": entries})
}

func (s *Server) pluginManifest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var (
		m   *manifest.Manifest
		err error
	)
	if ver := r.URL.Query().Get("version"); ver != "" {
		m, err = s.catalog.FetchManifestVersion(r.Context(), id, ver)
	} else {
		m, err = s.catalog.FetchManifest(r.Context(), id)
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if m == nil {
		httputil.WriteNotFoundError(w, "plugin "+id+" not found")
		return
	}
	httputil.WriteSuccess(w, m)
}

func (s *Server) pluginVersions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	versions, err := s.catalog.ListVersions(r.Context(), id)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if versions == nil {
		versions = []string{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"plugin_id": id,
		"versions":  versions,
	})
}

func (s *Server) recordInstall(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.catalog.RecordInstall(r.Context(), id); err != nil {
		httputil.WriteNotFoundError(w, err.Error())
		return
	}
	httputil.WriteNoContent(w)
}
