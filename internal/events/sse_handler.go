package events

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-raffle/internal/logger"
)

// SSEHandler streams domain events to the admin notification center.
type SSEHandler struct {
	Emitter *Emitter
	Logger  *logger.Logger
}

func NewSSEHandler(emitter *Emitter, log *logger.Logger) *SSEHandler {
	return &SSEHandler{Emitter: emitter, Logger: log}
}

// StreamAll sends every domain event to the connected admin client.
func (h *SSEHandler) StreamAll(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientChan := h.Emitter.SubscribeAll(r.Context())
	h.Logger.Info("SSE", "Admin client connected to event stream")

	fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			h.Logger.Info("SSE", "Admin client disconnected from event stream")
			return
		case event, open := <-clientChan:
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to marshal event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
			flusher.Flush()
		}
	}
}

// StreamRaffle sends one raffle's events to the connected client.
func (h *SSEHandler) StreamRaffle(w http.ResponseWriter, r *http.Request) {
	raffleID := chi.URLParam(r, "raffleId")
	if raffleID == "" {
		http.Error(w, "Raffle ID is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientChan := h.Emitter.SubscribeToRaffle(r.Context(), raffleID)
	h.Logger.Info("SSE", fmt.Sprintf("Client connected to raffle %s event stream", raffleID))

	fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-clientChan:
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to marshal event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
			flusher.Flush()
		}
	}
}
