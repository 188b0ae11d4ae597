package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nerrad567/starlink-bridge/internal/bridges/starlink"
	"github.com/nerrad567/starlink-bridge/internal/loop"
)

// statusClientClosedRequest is recorded when the client goes away before a
// write is scheduled. Nothing is sent back.
const statusClientClosedRequest = 499

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status        starlink.HealthStatus `json:"status"`
	Reason        string                `json:"reason,omitempty"`
	State         string                `json:"state"`
	Service       string                `json:"service,omitempty"`
	InstanceID    string                `json:"instance_id,omitempty"`
	Version       string                `json:"version"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	Stats         StatsResponse         `json:"stats"`
	Telemetry     *TelemetryResponse    `json:"telemetry,omitempty"`
}

// StatsResponse mirrors starlink.Stats.
type StatsResponse struct {
	Cycles            uint64 `json:"cycles"`
	Fixes             uint64 `json:"fixes"`
	NoFix             uint64 `json:"no_fix"`
	TransportFailures uint64 `json:"transport_failures"`
	LastRefresh       string `json:"last_refresh,omitempty"`
	LastRefreshFailed bool   `json:"last_refresh_failed"`
}

// TelemetryResponse reports the InfluxDB position history writer.
type TelemetryResponse struct {
	PointsWritten uint64 `json:"points_written"`
	WriteFailures uint64 `json:"write_failures"`
}

// DeviceResponse is returned by GET /api/v1/device.
type DeviceResponse struct {
	Service    string         `json:"service"`
	ShortID    string         `json:"short_id"`
	Attributes map[string]any `json:"attributes"`
}

// CustomNameRequest is the body of PUT /api/v1/device/custom-name.
type CustomNameRequest struct {
	Value *string `json:"value"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := s.device.State()
	resp := HealthResponse{
		State:         state.String(),
		Service:       s.device.ServiceName(),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Stats:         statsResponse(s.device.Stats()),
	}
	if s.telemetry != nil {
		resp.Telemetry = &TelemetryResponse{
			PointsWritten: s.telemetry.Written(),
			WriteFailures: s.telemetry.Failed(),
		}
	}

	switch {
	case s.health != nil:
		resp.Status, resp.Reason = s.health.Status()
		resp.InstanceID = s.health.InstanceID()
	case state == starlink.StateRunning:
		resp.Status = starlink.HealthHealthy
	default:
		resp.Status = starlink.HealthStarting
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, _ *http.Request) {
	if s.device.State() != starlink.StateRunning {
		writeUnavailable(w, "device not registered yet")
		return
	}

	writeJSON(w, http.StatusOK, DeviceResponse{
		Service:    s.device.ServiceName(),
		ShortID:    s.device.ShortID(),
		Attributes: s.device.Snapshot().Values(),
	})
}

func (s *Server) handleSetCustomName(w http.ResponseWriter, r *http.Request) {
	var req CustomNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeBadRequest(w, "value is required")
		return
	}

	ctx := r.Context()
	var setErr error
	apply := func() { setErr = s.device.SetCustomName(ctx, *req.Value) }

	if s.exec == nil {
		apply()
	} else if err := s.exec.Do(ctx, apply); err != nil {
		switch {
		case ctx.Err() != nil:
			s.logger.Debug("custom name request cancelled",
				"error", err,
				"request_id", requestIDFrom(ctx),
			)
			w.WriteHeader(statusClientClosedRequest)
		case errors.Is(err, loop.ErrStopped):
			s.logger.Warn("custom name write not scheduled",
				"error", err,
				"request_id", requestIDFrom(ctx),
			)
			writeUnavailable(w, "bridge is shutting down")
		default:
			s.logger.Error("custom name write not scheduled",
				"error", err,
				"request_id", requestIDFrom(ctx),
			)
			writeInternalError(w, "failed to schedule custom name write")
		}
		return
	}

	switch {
	case setErr == nil:
	case errors.Is(setErr, starlink.ErrInvalidCustomName):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, setErr.Error())
		return
	case errors.Is(setErr, starlink.ErrNotRunning):
		writeUnavailable(w, "device not registered yet")
		return
	default:
		s.logger.Error("custom name write failed",
			"error", setErr,
			"request_id", requestIDFrom(ctx),
		)
		writeInternalError(w, "failed to persist custom name")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"value": s.device.Snapshot().CustomName,
	})
}

func statsResponse(st starlink.Stats) StatsResponse {
	resp := StatsResponse{
		Cycles:            st.Cycles,
		Fixes:             st.Fixes,
		NoFix:             st.NoFix,
		TransportFailures: st.TransportFailures,
		LastRefreshFailed: st.LastRefreshFailed,
	}
	if !st.LastRefresh.IsZero() {
		resp.LastRefresh = st.LastRefresh.UTC().Format(time.RFC3339)
	}
	return resp
}
