package handler

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/quizsession"
	ws "github.com/stemsi/exstem-quiz/internal/websocket"
)

const outboundBuffer = 256

// sessionConn is the browser side of a quiz session. It implements the
// controller's View, Notifier, Screen and Sensors ports by queueing events
// for a single writer goroutine, so the controller never blocks on the socket.
type sessionConn struct {
	conn *websocket.Conn
	log  zerolog.Logger

	out       chan ws.Message
	done      chan struct{}
	closeOnce sync.Once
}

func newSessionConn(conn *websocket.Conn, log zerolog.Logger) *sessionConn {
	return &sessionConn{
		conn: conn,
		log:  log,
		out:  make(chan ws.Message, outboundBuffer),
		done: make(chan struct{}),
	}
}

// writeLoop owns every write to the socket until close is called.
func (s *sessionConn) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.out:
			if err := ws.WriteTyped(s.conn, msg); err != nil {
				s.log.Debug().Err(err).Str("event", string(msg.Event)).Msg("Write failed")
				s.close()
				return
			}
			if msg.Event == ws.EventComplete {
				_ = ws.WriteClose(s.conn, "session complete")
			}
		}
	}
}

func (s *sessionConn) send(msg ws.Message) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.out <- msg:
	default:
		s.log.Warn().Str("event", string(msg.Event)).Msg("Outbound buffer full, dropping event")
	}
}

func (s *sessionConn) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *sessionConn) Render(snap quizsession.Snapshot) {
	s.send(ws.Message{Event: ws.EventSnapshot, Data: snap})
}

func (s *sessionConn) Notify(n quizsession.Notice) {
	s.send(ws.Message{Event: ws.EventNotice, Data: n})
}

// RequestFullScreen asks the browser to enter full-screen. The outcome
// comes back as a fullscreen_entered or fullscreen_failed action.
func (s *sessionConn) RequestFullScreen() error {
	s.send(ws.Message{Event: ws.EventRequestFullScreen})
	return nil
}

func (s *sessionConn) ExitFullScreen() error {
	s.send(ws.Message{Event: ws.EventExitFullScreen})
	return nil
}

// Attach tells the browser to start reporting integrity events.
func (s *sessionConn) Attach() (func(), error) {
	s.send(ws.Message{Event: ws.EventAttachSensors})
	return func() {
		s.send(ws.Message{Event: ws.EventDetachSensors})
	}, nil
}

func (s *sessionConn) verdict(ref string, v quizsession.Verdict) {
	s.send(ws.Message{Event: ws.EventVerdict, Ref: ref, Data: v})
}

func (s *sessionConn) fail(ref, msg string, fields map[string]string) {
	s.send(ws.Message{Event: ws.EventError, Ref: ref, Data: ws.ErrorData{Error: msg, Fields: fields}})
}
