package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/dashpulse/internal/adapter/metrics"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 64
)

var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrPeerClosed     = errors.New("peer closed")
)

// clientWriter owns the write side of one socket. It implements broadcast.Peer:
// Send only enqueues, and Close returns immediately while the close frame is
// written in the background.
type clientWriter struct {
	connection  *websocket.Conn
	clock       clockwork.Clock
	metrics     *metrics.WebSocketMetrics
	sendChannel chan []byte
	doneChannel chan struct{}
	closed      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func newClientWriter(connection *websocket.Conn, clock clockwork.Clock, m *metrics.WebSocketMetrics) *clientWriter {
	cw := &clientWriter{
		connection:  connection,
		clock:       clock,
		metrics:     m,
		sendChannel: make(chan []byte, messageBufferSize),
		doneChannel: make(chan struct{}),
		closed:      make(chan struct{}),
	}
	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *clientWriter) Send(data []byte) error {
	select {
	case <-cw.doneChannel:
		return ErrPeerClosed
	default:
	}

	select {
	case cw.sendChannel <- data:
		return nil
	case <-cw.doneChannel:
		return ErrPeerClosed
	default:
		cw.metrics.SendBufferOverflow.Inc()
		return ErrSendBufferFull
	}
}

func (cw *clientWriter) Close() error {
	cw.stopGraceful(websocket.CloseNormalClosure, "")
	return nil
}

// wait blocks until the socket has been closed.
func (cw *clientWriter) wait() {
	<-cw.closed
}

func (cw *clientWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()

	for {
		select {
		case msg := <-cw.sendChannel:
			start := cw.clock.Now()
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = cw.connection.Close()
				return
			}
			cw.metrics.WriteDuration.Observe(cw.clock.Since(start).Seconds())
		case <-ticker.Chan():
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				cw.metrics.PingFailures.Inc()
				_ = cw.connection.Close()
				return
			}
		case <-cw.doneChannel:
			return
		}
	}
}

// stopGraceful signals the writer goroutine and, once it has exited, writes a close
// frame and closes the socket. Only the first call has any effect.
func (cw *clientWriter) stopGraceful(code int, reason string) {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		go func() {
			defer close(cw.closed)

			// The close frame must not race a data frame from run.
			cw.wg.Wait()

			cw.updateWriteDeadline()
			_ = cw.connection.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
			_ = cw.connection.Close()
		}()
	})
}

func (cw *clientWriter) updateWriteDeadline() {
	_ = cw.connection.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
}
