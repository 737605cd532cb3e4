package adminapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/cuemby/ztgateway/pkg/log"
	"github.com/cuemby/ztgateway/pkg/metrics"
	"github.com/cuemby/ztgateway/pkg/types"
)

// Handler returns a thin net/http handler exposing the §4.5 operations
// as JSON over HTTP. It has no browser UI of its own; that is an
// external collaborator.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /endpoints/clients", a.handleCreateClient)
	mux.HandleFunc("POST /endpoints/services", a.handleCreateService)
	mux.HandleFunc("DELETE /endpoints/{cn}", a.handleDeleteEndpoint)
	mux.HandleFunc("GET /endpoints", a.handleListEndpoints)
	mux.HandleFunc("POST /zones/{zone}/authorize", a.handleAuthorize)
	mux.HandleFunc("POST /zones/{zone}/deauthorize", a.handleDeauthorize)
	mux.HandleFunc("DELETE /zones/{zone}", a.handleDeleteZone)
	mux.HandleFunc("GET /zones", a.handleListZones)
	mux.HandleFunc("DELETE /routes/{cn}", a.handleDeleteRoute)
	mux.HandleFunc("GET /routes", a.handleListRoutes)

	return instrument(mux)
}

// instrument wraps every request with the admin API's request-count and
// duration metrics.
func instrument(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)
		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, http.StatusText(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type createClientRequest struct {
	Name     string `json:"name"`
	Platform string `json:"platform"`
}

type bundleResponse struct {
	CN     string `json:"cn"`
	Bundle string `json:"bundle"` // base64-encoded zip archive
}

func (a *API) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cn, bundle, err := a.CreateClient(req.Name, req.Platform)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, bundleResponse{CN: cn, Bundle: base64.StdEncoding.EncodeToString(bundle)})
}

type createServiceRequest struct {
	Name        string                    `json:"name"`
	Platform    string                    `json:"platform"`
	BackendHost string                    `json:"backend_host"`
	BackendPort int                       `json:"backend_port"`
	Domains     []string                  `json:"domains"`
	Records     map[string][]types.Record `json:"records"`
}

func (a *API) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var req createServiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cn, bundle, err := a.CreateService(req.Name, req.Platform, req.BackendHost, req.BackendPort, req.Domains, req.Records)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, bundleResponse{CN: cn, Bundle: base64.StdEncoding.EncodeToString(bundle)})
}

func (a *API) handleDeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	cn := r.PathValue("cn")
	if err := a.DeleteEndpoint(cn); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	list, err := a.ListEndpoints()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type authorizeRequest struct {
	CN string `json:"cn"`
}

func (a *API) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.AuthorizeEndpoint(r.PathValue("zone"), req.CN); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDeauthorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.DeauthorizeEndpoint(r.PathValue("zone"), req.CN); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDeleteZone(w http.ResponseWriter, r *http.Request) {
	if err := a.DeleteZone(r.PathValue("zone")); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDeleteRoute(w http.ResponseWriter, r *http.Request) {
	if err := a.DeleteRoute(r.PathValue("cn")); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListZones(w http.ResponseWriter, r *http.Request) {
	list, err := a.ListZones()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	list, err := a.ListRoutes()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithComponent("adminapi").Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
