package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tradedesk/internal/worker"
)

// handleCompute runs one worker request. Computation failures are reported
// in the response body with status 200; only an undecodable request or a
// stopped worker is an HTTP error.
func (s *Server) handleCompute(w http.ResponseWriter, r *http.Request) {
	var req worker.Request
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.worker.Submit(r.Context(), req)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, resp)
}

// handleComputeWS serves the worker over a WebSocket: every text frame is a
// request and every response is sent back as a frame, correlated by id.
// Requests are pipelined; responses arrive in queue order.
func (s *Server) handleComputeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	replies := make(chan worker.Response, sendBuffer)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case resp := <-replies:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(resp); err != nil {
					cancel()
					conn.Close() // unblocks the reader
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("compute socket closed", "error", err)
			}
			break
		}
		var req worker.Request
		if err := json.Unmarshal(data, &req); err != nil {
			select {
			case replies <- worker.Response{Error: "invalid request: " + err.Error()}:
			case <-ctx.Done():
			}
			continue
		}
		if err := s.worker.Enqueue(ctx, req, replies); err != nil {
			if errors.Is(err, worker.ErrStopped) {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "worker stopped"),
					time.Now().Add(writeWait))
			}
			break
		}
	}
	cancel()
	<-writerDone
}
