package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/micro-nova/ibeacon-go/internal/events"
)

// EventMessage is one SSE data payload.
type EventMessage struct {
	Kind   string     `json:"kind"`
	Config ConfigBody `json:"config"`
	Error  string     `json:"error,omitempty"`
	Time   time.Time  `json:"time"`
}

func eventMessage(ev events.Event) EventMessage {
	msg := EventMessage{Kind: ev.Kind.String(), Config: configBody(ev.Config), Time: ev.Time}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	return msg
}

// sseEvents handles the SSE (Server-Sent Events) endpoint.
// Clients receive the live configuration immediately, then every configure outcome.
func (h *Handlers) sseEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	id := uuid.New().String()
	ch := h.events.Subscribe(id)
	defer h.events.Unsubscribe(id)

	sendSSE(w, flusher, eventMessage(events.Event{
		Kind:   events.KindConfigured,
		Config: h.d.Current(),
		Time:   time.Now(),
	}))

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			sendSSE(w, flusher, eventMessage(ev))
		case <-r.Context().Done():
			return
		}
	}
}

func sendSSE(w http.ResponseWriter, flusher http.Flusher, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
