package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-device/pkg/iotdevice"
)

// healthCheckTimeout bounds all dependency checks in one /health request.
const healthCheckTimeout = 3 * time.Second

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	DeviceID      string            `json:"device_id"`
	State         string            `json:"state"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// ServiceResponse describes one registered service.
type ServiceResponse struct {
	ServiceID  string         `json:"service_id"`
	Properties map[string]any `json:"properties,omitempty"`
	Reported   map[string]any `json:"reported,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
}

// CommandResponse is the body of a local command invocation.
type CommandResponse struct {
	RequestID  string         `json:"request_id"`
	ResultCode int            `json:"result_code"`
	ResultDesc string         `json:"result_desc"`
	Paras      map[string]any `json:"paras,omitempty"`
}

// handleHealth reports the device state and checks every dependency.
// The status is "ok" only when the device is connected and all checks pass.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	state := s.device.State()
	resp := HealthResponse{
		Status:        "ok",
		Version:       s.version,
		DeviceID:      s.device.DeviceID(),
		State:         state.String(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
	if state != iotdevice.StateConnected {
		resp.Status = "degraded"
	}

	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
		for name, check := range s.checks {
			if err := check.HealthCheck(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleListServices lists registered service ids in registration order.
func (s *Server) handleListServices(w http.ResponseWriter, _ *http.Request) {
	ids := s.device.ServiceIDs()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"services": ids,
		"count":    len(ids),
	})
}

// handleGetService returns current values alongside the last reported baseline.
func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	props, err := s.device.Properties(id)
	if errors.Is(err, iotdevice.ErrServiceNotFound) {
		writeNotFound(w, "service not found")
		return
	}

	reported, _ := s.device.Baseline(id)
	resp := ServiceResponse{ServiceID: id, Properties: props, Reported: reported}
	if err != nil {
		resp.Errors = splitJoined(err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReportService runs a change pass on one service.
func (s *Server) handleReportService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.device.FirePropertiesChanged(r.Context(), id); err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"service_id": id, "status": "reported"})
}

// handleInvokeCommand dispatches a command as if the platform had sent it.
func (s *Server) handleInvokeCommand(w http.ResponseWriter, r *http.Request) {
	if s.commands == nil {
		writeError(w, http.StatusNotImplemented, ErrCodeNotImplemented, "local commands are disabled")
		return
	}

	var paras map[string]any
	if err := json.NewDecoder(r.Body).Decode(&paras); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	requestID := requestIDFrom(r.Context())
	if requestID == "" {
		requestID = uuid.NewString()
	}

	ack := s.commands(r.Context(), iotdevice.CommandEnvelope{
		Kind:      iotdevice.KindCommand,
		RequestID: requestID,
		ServiceID: chi.URLParam(r, "id"),
		Name:      chi.URLParam(r, "name"),
		Payload:   paras,
	})

	status := http.StatusOK
	switch {
	case errors.Is(ack.Err, iotdevice.ErrServiceNotFound), errors.Is(ack.Err, iotdevice.ErrCommandNotFound):
		status = http.StatusNotFound
	case !ack.OK():
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, CommandResponse{
		RequestID:  requestID,
		ResultCode: ack.ResultCode,
		ResultDesc: ack.ResultDesc,
		Paras:      ack.Payload,
	})
}

// splitJoined flattens an errors.Join result into sorted messages.
func splitJoined(err error) []string {
	var msgs []string
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			msgs = append(msgs, e.Error())
		}
	} else {
		msgs = append(msgs, err.Error())
	}
	sort.Strings(msgs)
	return msgs
}
