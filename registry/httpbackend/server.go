package httpbackend

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pilacorp/go-trackback-agent/logger"
	"github.com/pilacorp/go-trackback-agent/registry"
)

const maxBodyBytes = 1 << 20

type handler struct {
	backend registry.Backend
	log     *logrus.Entry
}

// NewHandler serves backend over HTTP.
func NewHandler(backend registry.Backend) http.Handler {
	h := &handler{
		backend: backend,
		log:     logger.New("registry-server"),
	}

	r := mux.NewRouter()
	r.HandleFunc("/dids/{did}", h.put).Methods(http.MethodPut)
	r.HandleFunc("/dids/{did}", h.get).Methods(http.MethodGet)

	return otelhttp.NewHandler(r, "did-registry")
}

func (h *handler) put(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["did"]

	var req putRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Record == nil || req.Record.DIDDocument == nil || req.Record.DIDDocument.ID != id {
		h.writeError(w, http.StatusBadRequest, "record does not describe "+id)
		return
	}
	if req.Owner == "" {
		h.writeError(w, http.StatusForbidden, "owner is required")
		return
	}

	if err := h.backend.Put(r.Context(), req.Owner, req.Record); err != nil {
		h.writeBackendError(w, id, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["did"]

	rec, err := h.backend.Get(r.Context(), id)
	if err != nil {
		h.writeBackendError(w, id, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rec); err != nil {
		h.log.WithField("did", id).WithError(err).Warn("failed to write response")
	}
}

func (h *handler) writeBackendError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrUnauthorized):
		h.writeError(w, http.StatusForbidden, err.Error())
	default:
		h.log.WithField("did", id).WithError(err).Error("backend failure")
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *handler) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}
