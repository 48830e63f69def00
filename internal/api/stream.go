package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/alejoacosta74/cardbatch/internal/dispatcher"
	"github.com/alejoacosta74/cardbatch/internal/events"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	streamQueueSize = 64
	writeWait       = 5 * time.Second
	pingPeriod      = 30 * time.Second
)

// handleBatchStream upgrades to a websocket and pushes every batch summary
// as a JSON text frame until the client goes away or the server stops.
func (s *Server) handleBatchStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		s.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	log := s.logger.WithField("remote", r.RemoteAddr)
	log.Debug("Batch stream opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	summaries := s.eventBus.Subscribe(events.TopicBatchCompleted)
	defer s.eventBus.Unsubscribe(events.TopicBatchCompleted, summaries)

	writer := newStreamWriter(conn, log)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writer.Run(ctx)
		cancel()
	}()
	go readUntilClosed(conn, cancel)

	defer func() {
		cancel()
		<-writerDone
		conn.Close()
		log.Debug("Batch stream closed")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-summaries:
			if !ok {
				return
			}
			summary, ok := ev.(dispatcher.Summary)
			if !ok {
				log.Warnf("Unexpected event type %T on batch stream", ev)
				continue
			}
			msg, err := json.Marshal(summary)
			if err != nil {
				log.WithError(err).Error("Failed to encode batch summary")
				continue
			}
			if !writer.Write(msg) {
				log.WithField("batch_id", summary.BatchID).Warn("Stream client too slow, summary dropped")
			}
		}
	}
}

// readUntilClosed consumes client frames so control messages are processed
// and cancels the stream once the connection fails or is closed.
func readUntilClosed(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// streamWriter serializes writes to one websocket connection.
type streamWriter struct {
	conn      *websocket.Conn
	writeChan chan []byte
	logger    *logrus.Entry
}

func newStreamWriter(conn *websocket.Conn, logger *logrus.Entry) *streamWriter {
	return &streamWriter{
		conn:      conn,
		writeChan: make(chan []byte, streamQueueSize),
		logger:    logger,
	}
}

// Run writes queued messages and periodic pings until ctx is done or a
// write fails.
func (w *streamWriter) Run(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			deadline := time.Now().Add(writeWait)
			_ = w.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"), deadline)
			return
		case <-ticker.C:
			if err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				w.logger.WithError(err).Debug("Ping failed")
				return
			}
		case msg := <-w.writeChan:
			_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w.logger.Tracef("Writing message to WebSocket: %s", string(msg))
			if err := w.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				w.logger.WithError(err).Debug("Error writing message to WebSocket")
				return
			}
		}
	}
}

// Write queues msg without blocking. It reports false when the queue is full.
func (w *streamWriter) Write(msg []byte) bool {
	select {
	case w.writeChan <- msg:
		return true
	default:
		return false
	}
}

func (w *streamWriter) drain() {
	for {
		select {
		case <-w.writeChan:
		default:
			return
		}
	}
}
