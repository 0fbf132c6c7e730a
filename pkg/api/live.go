package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/coopportal/coopsearch/pkg/async"
	"github.com/coopportal/coopsearch/pkg/httputil"
	"github.com/coopportal/coopsearch/pkg/middleware"
	"github.com/coopportal/coopsearch/pkg/observability"
	"github.com/coopportal/coopsearch/pkg/search"
)

const (
	defaultLiveIdleTimeout = 5 * time.Minute
	liveWriteTimeout       = 10 * time.Second
	liveMaxMessageSize     = 4096
)

// liveSearch handles GET /api/v1/search/live.
//
// The client sends {"query": "..."} on every keystroke; the server debounces them
// through a search.Session and pushes a LiveMessage for each snapshot: one with
// loading set when a search starts, one with results when it completes. Results of
// superseded searches are never sent.
func (s *Server) liveSearch(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r)
	if !ok {
		httputil.WriteUnauthorized(w, middleware.ErrMissingIdentity.Error())
		return
	}
	limit, ok := httputil.ParseQueryIntOrError(w, r, "limit", s.engine.Config().MaxPerCategory, 1, maxLimit)
	if !ok {
		return
	}

	logger := observability.FromContext(r.Context()).WithFields(logrus.Fields{
		"role":    ac.Role,
		"user_id": ac.User(),
	})

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	session := s.engine.NewSession(ac, search.SessionConfig{
		Debounce:       s.opts.Debounce,
		Clock:          s.opts.Clock,
		MaxPerCategory: limit,
		Logger:         logger,
	})
	defer session.Close()

	notices := make(chan LiveMessage, 4)
	writerDone := async.SafeGo(context.Background(), logger, 0, "live search writer", func(ctx context.Context) error {
		defer conn.Close() // unblocks the reader when a write fails
		return s.writeLive(conn, session.Updates(), notices)
	})

	logger.Debug("Live search connected")
	s.readLive(conn, session, notices, logger)

	session.Close()
	<-writerDone
	logger.Debug("Live search disconnected")
}

// readLive feeds client messages into the session until the connection closes or
// idles out
func (s *Server) readLive(conn *websocket.Conn, session *search.Session, notices chan<- LiveMessage, logger logrus.FieldLogger) {
	conn.SetReadLimit(liveMaxMessageSize)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.LiveIdleTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WithError(err).Debug("Live search read ended")
			}
			return
		}

		var req LiveRequest
		if err := json.Unmarshal(data, &req); err != nil {
			select {
			case notices <- LiveMessage{Type: LiveError, Error: "invalid message: expected {\"query\": \"...\"}"}:
			default:
			}
			continue
		}
		session.Type(req.Query)
	}
}

// writeLive is the only goroutine writing to conn. It returns when the session's
// update channel is closed or a write fails.
func (s *Server) writeLive(conn *websocket.Conn, updates <-chan search.Snapshot, notices <-chan LiveMessage) error {
	ping := time.NewTicker(s.opts.LiveIdleTimeout / 2)
	defer ping.Stop()

	write := func(msg LiveMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		return conn.WriteJSON(msg)
	}

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(liveWriteTimeout))
				return nil
			}
			if err := write(snapshotMessage(snap)); err != nil {
				return err
			}
		case msg := <-notices:
			if err := write(msg); err != nil {
				return err
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteTimeout)); err != nil {
				return err
			}
		}
	}
}
