package api

import (
	"encoding/json"
	"net/http"

	"github.com/hardstakes/arena/internal/infrastructure/sse"
)

// watch streams committed events of one match as server-sent events.
// Match 0 streams every match.
func (s *Server) watch(w http.ResponseWriter, r *http.Request) {
	matchID, ok := matchIDParam(w, r)
	if !ok {
		return
	}
	if _, ok := s.node.Machine().GetMatch(matchID); !ok && matchID != 0 {
		respondError(w, http.StatusNotFound, "MATCH_NOT_FOUND", "match not found", nil)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported", nil)
		return
	}

	client := sse.NewClient(matchID)
	s.hub.Register(client)
	defer s.hub.Unregister(client.ClientID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case ev, open := <-client.MessageChan:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			_, _ = w.Write([]byte("id: " + ev.EventID + "\nevent: " + ev.Type + "\ndata: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
