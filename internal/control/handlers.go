package control

import (
	"encoding/json"
	stdErrors "errors"
	"net/http"

	"github.com/netforge/protoperf/internal/logging"
	"github.com/netforge/protoperf/pkg/errors"
	"github.com/netforge/protoperf/pkg/types"
)

const maxJSONBodyBytes = 1 << 20

// Handler exposes the service over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service: service,
		logger:  logging.NewLogger("control-http"),
	}
}

// ConfigRequest is the POST /network/config body.
type ConfigRequest struct {
	Delay     uint `json:"delay"`
	Loss      uint `json:"loss"`
	Bandwidth uint `json:"bandwidth"`
}

// StatusResponse is the GET /network/status body; all zeros when unset.
type StatusResponse struct {
	Delay     uint `json:"delay"`
	Loss      uint `json:"loss"`
	Bandwidth uint `json:"bandwidth"`
}

func (h *Handler) SetConfig(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var req ConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONBodyError(w, err)
		return
	}

	profile := types.NetworkProfile{
		DelayMs:       req.Delay,
		LossPercent:   req.Loss,
		BandwidthMbps: req.Bandwidth,
	}

	h.logger.Info("set network config", logging.F("profile", profile))

	if err := h.service.SetProfile(profile); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "success"}, http.StatusOK)
}

func (h *Handler) ClearConfig(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("clear network config")

	if err := h.service.Clear(); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "cleared"}, http.StatusOK)
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	profile := h.service.Status().Profile()
	respondJSON(w, StatusResponse{
		Delay:     profile.DelayMs,
		Loss:      profile.LossPercent,
		Bandwidth: profile.BandwidthMbps,
	}, http.StatusOK)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		h.logger.Warn("health: write response", logging.F("error", err))
	}
}

func respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Warn("JSON response encode failed", logging.F("error", err))
	}
}

func respondJSONBodyError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if stdErrors.As(err, &maxErr) {
		respondJSON(w, map[string]string{"error": "request body too large"}, http.StatusRequestEntityTooLarge)
		return
	}
	respondJSON(w, map[string]string{"error": "invalid request body"}, http.StatusBadRequest)
}

func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.IsConfiguration(err) {
		status = http.StatusBadRequest
	}
	var ce *errors.ControlError
	if stdErrors.As(err, &ce) {
		respondJSON(w, map[string]string{"error": ce.Message, "code": ce.Code}, status)
		return
	}
	respondJSON(w, map[string]string{"error": err.Error()}, status)
}
