// Package api exposes the beacon configuration over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/micro-nova/ibeacon-go/internal/events"
	"github.com/micro-nova/ibeacon-go/internal/identity"
	"github.com/micro-nova/ibeacon-go/internal/models"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	d      Dispatcher
	events EventBus
}

// Dispatcher is the part of *dispatch.Dispatcher the handlers use.
type Dispatcher interface {
	Identity() identity.Info
	Information() string
	Current() models.Configuration
	Configure(cfg models.Configuration) error
	HandleLine(line string) string
}

// EventBus is the interface for subscribing to configure events.
type EventBus interface {
	Subscribe(id string) <-chan events.Event
	Unsubscribe(id string)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an AppError as a JSON response.
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		w.WriteHeader(appErr.Status)
		_ = json.NewEncoder(w).Encode(appErr)
		return
	}
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(models.ErrInternal(err.Error()))
}
