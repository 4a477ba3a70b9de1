package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/pdfstract-go/internal/compare"
)

// watchPollInterval is how often the watch loop samples the task store.
const watchPollInterval = 250 * time.Millisecond

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// watchCompare upgrades to a websocket and pushes each changed task
// snapshot until the task reaches a terminal state or disappears, then
// closes the connection.
func (s *Server) watchCompare(w http.ResponseWriter, r *http.Request, taskID string) {
	if _, err := s.deps.Store.Get(taskID); err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.deps.Logger.Warn("websocket upgrade failed", "task", taskID, "error", err)
		return
	}
	defer conn.Close()

	// Reader goroutine surfaces client-side close so the poll loop stops.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(watchPollInterval)
	defer ticker.Stop()

	var last compare.Task
	first := true
	for {
		task, err := s.deps.Store.Get(taskID)
		if err != nil {
			// Task deleted mid-watch: tell the client and stop.
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "task deleted"),
				time.Now().Add(time.Second))
			return
		}

		if first || snapshotChanged(last, task) {
			if err := conn.WriteJSON(task); err != nil {
				return
			}
			last = task
			first = false
		}

		if task.Completed() {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "completed"),
				time.Now().Add(time.Second))
			return
		}

		select {
		case <-ticker.C:
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// snapshotChanged reports whether two snapshots differ in aggregate status
// or any outcome status.
func snapshotChanged(a, b compare.Task) bool {
	if a.Status != b.Status {
		return true
	}
	for name, oc := range b.Outcomes {
		if a.Outcomes[name].Status != oc.Status {
			return true
		}
	}
	return false
}
