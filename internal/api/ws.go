package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JakeFAU/ai-news-scraper/internal/metrics"
)

const (
	// wsReadLimit caps client frames; the stream is push-only.
	wsReadLimit = 4096
	// closeReasonDropped is sent when the hub closes an observer's channel.
	closeReasonDropped = "progress stream closed"
)

// progressStream handles GET /ws/scrape-progress. The hub replays the
// current state on attach, then every event is written as one JSON text frame.
func (s *Server) progressStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	sub := s.progress.Attach()
	defer sub.Close()
	metrics.IncObservers()
	defer metrics.DecObservers()

	logger := s.logger.With(zap.String("request_id", requestID(r.Context())))
	logger.Debug("progress observer attached")

	pongWait := 2 * s.cfg.PingInterval
	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, closeReasonDropped)
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout))
				logger.Info("progress observer dropped")
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				logger.Debug("progress write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				logger.Debug("progress ping failed", zap.Error(err))
				return
			}
		case <-closed:
			logger.Debug("progress observer disconnected")
			return
		}
	}
}
