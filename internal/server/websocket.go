package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MeKo-Tech/ocrlite/internal/pipeline"
	"github.com/MeKo-Tech/ocrlite/internal/utils"
	"github.com/gorilla/websocket"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsWriteWait  = 10 * time.Second
)

// WebSocketResponse is sent for every frame the client sends. Frames are
// numbered from 1 in arrival order.
type WebSocketResponse struct {
	Frame     int             `json:"frame"`
	Status    string          `json:"status"` // "completed" or "error"
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.cfg.CORSOrigin == "*" || origin == s.cfg.CORSOrigin
		},
	}
}

// webSocketHandler streams OCR over a WebSocket: each binary frame is an
// encoded image and is answered with one JSON text frame.
func (s *Server) webSocketHandler(w http.ResponseWriter, r *http.Request) {
	requestID := RequestID(r.Context())
	conn, err := s.upgrader().Upgrade(w, r, http.Header{RequestIDHeader: {requestID}})
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	s.metrics.wsConnections.Inc()
	defer s.metrics.wsConnections.Dec()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)
	s.serveWebSocket(r.Context(), conn, requestID)
}

func (s *Server) serveWebSocket(ctx context.Context, conn *websocket.Conn, requestID string) {
	conn.SetReadLimit(s.maxUploadBytes())
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	for frame := 1; ; frame++ {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("WebSocket closed", "error", err)
			}
			return
		}
		s.metrics.wsMessages.WithLabelValues("received").Inc()
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		resp := WebSocketResponse{Frame: frame, Status: "completed", RequestID: requestID}
		if messageType != websocket.BinaryMessage {
			resp.Status, resp.Error = "error", "expected a binary frame containing an encoded image"
		} else if result, err := s.processFrame(ctx, data, frame); err != nil {
			resp.Status, resp.Error = "error", err.Error()
		} else {
			resp.Result = result
		}

		if err := s.writeWebSocketJSON(conn, resp); err != nil {
			slog.Warn("WebSocket write failed", "error", err)
			return
		}
	}
}

func (s *Server) processFrame(ctx context.Context, data []byte, frame int) (json.RawMessage, error) {
	img, _, err := utils.DecodeImage(bytes.NewReader(data))
	if err != nil {
		s.metrics.ocrRequest("ws", err)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	res, err := s.processor.Process(ctx, img)
	s.metrics.ocrRequest("ws", err)
	if err != nil {
		return nil, err
	}
	body, err := pipeline.ToJSON("frame_"+strconv.Itoa(frame), res)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func (s *Server) writeWebSocketJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(v); err != nil {
		return err
	}
	s.metrics.wsMessages.WithLabelValues("sent").Inc()
	return nil
}
