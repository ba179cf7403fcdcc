package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/micro-nova/ibeacon-go/internal/models"
)

// maxCommandBody bounds POST /api/command bodies to one protocol line.
const maxCommandBody = 256

// InfoResponse is the body of GET /api/info.
type InfoResponse struct {
	Version  string `json:"version"`
	DeviceID string `json:"device_id"`
	Info     string `json:"info"`
}

// ConfigBody is the JSON form of a beacon configuration.
type ConfigBody struct {
	UUID  string `json:"uuid"`
	Major uint16 `json:"major"`
	Minor uint16 `json:"minor"`
}

func configBody(cfg models.Configuration) ConfigBody {
	return ConfigBody{
		UUID:  uuid.UUID(cfg.UUID).String(),
		Major: cfg.Major,
		Minor: cfg.Minor,
	}
}

func (h *Handlers) getInfo(w http.ResponseWriter, r *http.Request) {
	id := h.d.Identity()
	writeJSON(w, http.StatusOK, InfoResponse{
		Version:  id.Version,
		DeviceID: id.DeviceID,
		Info:     h.d.Information(),
	})
}

func (h *Handlers) getConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configBody(h.d.Current()))
}

// putConfig accepts the UUID in any form uuid.Parse understands,
// with or without dashes.
func (h *Handlers) putConfig(w http.ResponseWriter, r *http.Request) {
	var body ConfigBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, models.ErrBadRequest("invalid JSON: "+err.Error()))
		return
	}
	id, err := uuid.Parse(body.UUID)
	if err != nil {
		writeError(w, models.ErrInvalidField("uuid", "invalid uuid: "+err.Error()))
		return
	}
	cfg := models.Configuration{UUID: [models.UUIDLen]byte(id), Major: body.Major, Minor: body.Minor}
	if err := h.d.Configure(cfg); err != nil {
		writeError(w, models.ErrRejected("configuration not accepted: "+err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, configBody(h.d.Current()))
}

// postCommand runs one protocol line and returns the protocol response as text.
func (h *Handlers) postCommand(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBody+1))
	if err != nil {
		writeError(w, models.ErrBadRequest("read body: "+err.Error()))
		return
	}
	if len(data) > maxCommandBody {
		writeError(w, models.ErrBadRequest("command longer than one line"))
		return
	}
	line := strings.TrimRight(string(data), "\r\n")
	if strings.ContainsAny(line, "\r\n") {
		writeError(w, models.ErrBadRequest("command must be a single line"))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, h.d.HandleLine(line))
}
