package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"wavepick/internal/model"
)

const heartbeatEvery = 15 * time.Second

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// subscribeRun subscribes to run events. If the run already finished the
// returned channel is nil and final carries the completion event.
func (s *Server) subscribeRun(ctx context.Context, run model.Run) (ch chan SSEEvent, final *SSEEvent) {
	ch = s.Broker.Subscribe(run.ID)
	// Re-read after subscribing so a completion between the lookup and the
	// subscription is not lost.
	if cur, err := s.Store.GetRun(ctx, run.TenantID, run.ID); err == nil {
		run = cur
	}
	if run.Done() {
		s.Broker.Unsubscribe(run.ID, ch)
		return nil, &SSEEvent{Type: model.EventRunCompleted, Data: runEventData(run)}
	}
	return ch, nil
}

func heartbeat(runID string) SSEEvent {
	return SSEEvent{Type: "heartbeat", Data: map[string]any{"runId": runID, "ts": time.Now().UTC().Format(time.RFC3339)}}
}

func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, run model.Run) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	send := func(evt SSEEvent) {
		b, _ := json.Marshal(evt.Data)
		fmt.Fprintf(w, "event: %s\n", evt.Type)
		fmt.Fprintf(w, "data: %s\n\n", b)
		flusher.Flush()
	}

	ch, final := s.subscribeRun(r.Context(), run)
	if final != nil {
		send(*final)
		return
	}
	defer s.Broker.Unsubscribe(run.ID, ch)
	send(heartbeat(run.ID))

	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			send(evt)
			if evt.Type == model.EventRunCompleted {
				return
			}
		case <-ticker.C:
			send(heartbeat(run.ID))
		}
	}
}

func (s *Server) streamWS(w http.ResponseWriter, r *http.Request, run model.Run) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	ch, final := s.subscribeRun(r.Context(), run)
	if final != nil {
		_ = conn.WriteJSON(final)
		closeWS(conn, "run finished")
		return
	}
	defer s.Broker.Unsubscribe(run.ID, ch)

	// Reader: only control frames are expected; a read error means the
	// client went away.
	gone := make(chan struct{})
	conn.SetReadLimit(1 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(4 * heartbeatEvery))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(4 * heartbeatEvery))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
			if evt.Type == model.EventRunCompleted {
				closeWS(conn, "run finished")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func closeWS(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
