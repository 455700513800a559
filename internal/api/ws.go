package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"repotutor/internal/apperr"
	"repotutor/internal/store"
)

const (
	statusWSWriteWait = 10 * time.Second
	statusWSPongWait  = 60 * time.Second
	statusWSPingEvery = (statusWSPongWait * 9) / 10
)

var statusWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// HandleStatusWS pushes a session's index status whenever it changes and
// closes once the status is terminal.
func (h *Handler) HandleStatusWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId"))
	if sessionID == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}

	conn, err := statusWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(statusWSPongWait)); err != nil {
		_ = conn.Close()
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(statusWSPongWait))
	})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	defer func() {
		_ = conn.Close()
		<-readerDone
	}()

	write := func(ev StatusEvent) bool {
		if err := conn.SetWriteDeadline(time.Now().Add(statusWSWriteWait)); err != nil {
			return false
		}
		return conn.WriteJSON(ev) == nil
	}

	poll := time.NewTicker(h.StatusPoll)
	defer poll.Stop()
	ping := time.NewTicker(statusWSPingEvery)
	defer ping.Stop()

	var last store.IndexStatus
	first := true
	for {
		st, err := h.sessions.GetStatus(ctx, sessionID)
		if err != nil {
			if ctx.Err() == nil {
				write(StatusEvent{Type: "error", Code: codeOf(apperr.KindOf(err)).String(), Message: apperr.Message(err)})
			}
			return
		}
		if first || changed(last, st) {
			if !write(StatusEvent{Type: "status", Status: &st}) {
				return
			}
			first, last = false, st
		}
		if st.State.Terminal() {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(st.State)),
				time.Now().Add(statusWSWriteWait))
			h.log.Debug("status watch finished", zap.String("session", sessionID), zap.String("state", string(st.State)))
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(statusWSWriteWait)); err != nil {
				return
			}
		case <-poll.C:
		}
	}
}

func changed(a, b store.IndexStatus) bool {
	return a.State != b.State || a.Progress != b.Progress || a.Error != b.Error || !a.UpdatedAt.Equal(b.UpdatedAt)
}
