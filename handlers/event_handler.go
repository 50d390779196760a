package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"snapLinkAPI/services"
)

// EventHandler is the intake for the message event source. The streak
// and reaction paths behind it swallow their own failures, so once a
// payload decodes the response is always 204: the sender's flow must
// never fail or retry because of streak tracking.
type EventHandler struct {
	streakService *services.StreakService
	batcher       *services.ReactionBatcher
}

func NewEventHandler(streakService *services.StreakService, batcher *services.ReactionBatcher) *EventHandler {
	return &EventHandler{
		streakService: streakService,
		batcher:       batcher,
	}
}

// POST /events/message-created
func (h *EventHandler) MessageCreated(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var ev services.MessageEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.streakService.HandleMessageCreated(ctx, &ev)

	w.WriteHeader(http.StatusNoContent)
}

// POST /events/reaction-created
func (h *EventHandler) ReactionCreated(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var ev services.ReactionEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.batcher.HandleReaction(ctx, &ev)

	w.WriteHeader(http.StatusNoContent)
}
