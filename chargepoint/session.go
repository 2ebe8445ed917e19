package chargepoint

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vcpsim/internal"
	"vcpsim/metrics/counters"
	"vcpsim/ocpp"
	"vcpsim/types"
)

var (
	ErrConnectFailure  = errors.New("connect failure")
	ErrCallTimeout     = errors.New("call timeout")
	ErrTransportClosed = errors.New("transport closed")
)

type SessionState int

const (
	SessionCreated SessionState = iota
	SessionOpen
	SessionClosing
	SessionClosed
)

// Session wraps one outbound websocket to the central system. All writes go
// through a single queue so outbound frames keep their send order; reads are
// dispatched from a single goroutine, which makes the session the unit of
// actor-like isolation.
type Session struct {
	endpoint      string
	chargePointId string
	version       types.ProtocolVersion
	dispatcher    *Dispatcher
	point         *ChargePoint
	logger        internal.LogHandler

	pending *pendingTable
	sendQ   chan sendJob
	done    chan struct{}

	mu    sync.Mutex
	conn  *websocket.Conn
	state SessionState

	closeOnce sync.Once

	// ExitOnClose is a boundary hint only: the session never terminates the
	// process itself, the enclosing command does when it sees OnClose fire
	// with this flag set.
	ExitOnClose bool
	OnClose     func(code int, reason string)
	OnError     func(err error)
}

type sendJob struct {
	data []byte
	done chan error
}

func NewSession(endpoint, chargePointId string, version types.ProtocolVersion, dispatcher *Dispatcher, logger internal.LogHandler) *Session {
	return &Session{
		endpoint:      strings.TrimSuffix(endpoint, "/"),
		chargePointId: chargePointId,
		version:       version,
		dispatcher:    dispatcher,
		logger:        logger,
		pending:       newPendingTable(DefaultCallTimeout),
		sendQ:         make(chan sendJob, 64),
		done:          make(chan struct{}),
	}
}

func (s *Session) Endpoint() string {
	return s.endpoint
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) IsOpen() bool {
	return s.State() == SessionOpen
}

// Connect dials the central system and completes when the websocket handshake
// is done. The caller is responsible for the BootNotification that follows.
func (s *Session) Connect() error {
	parsed, err := url.Parse(s.endpoint)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrConnectFailure, err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrConnectFailure, parsed.Scheme)
	}

	dialer := websocket.Dialer{
		Subprotocols:     []string{s.version.SubProtocol()},
		HandshakeTimeout: 30 * time.Second,
	}
	wsURL := s.endpoint + "/" + s.chargePointId
	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrConnectFailure, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = SessionOpen
	s.mu.Unlock()

	s.logger.FeatureEvent("Connect", s.chargePointId, fmt.Sprintf("connected to %s (%s)", wsURL, conn.Subprotocol()))

	go s.writer()
	go s.reader()
	return nil
}

func (s *Session) reader() {
	conn := s.connection()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			code, reason := websocket.CloseInternalServerErr, err.Error()
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				code, reason = closeErr.Code, closeErr.Text
			}
			s.teardown(code, reason)
			return
		}
		counters.CountFrame("in")
		s.logger.RawDataEvent("IN", string(data))
		s.dispatcher.HandleFrame(s.point, data)
	}
}

func (s *Session) writer() {
	conn := s.connection()
	for {
		select {
		case job := <-s.sendQ:
			counters.CountFrame("out")
			s.logger.RawDataEvent("OUT", string(job.data))
			err := conn.WriteMessage(websocket.TextMessage, job.data)
			if job.done != nil {
				job.done <- err
			}
			if err != nil && s.OnError != nil {
				s.OnError(err)
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) connection() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Session) enqueue(data []byte, done chan error) error {
	s.mu.Lock()
	if s.state != SessionOpen {
		s.mu.Unlock()
		return ErrTransportClosed
	}
	s.mu.Unlock()
	select {
	case s.sendQ <- sendJob{data: data, done: done}:
		return nil
	case <-s.done:
		return ErrTransportClosed
	}
}

// Send schedules an outbound call and returns immediately. The response, when
// it arrives, is handled by the registered response handler only.
func (s *Session) Send(request ocpp.Request) (string, error) {
	call, data, err := s.buildCall(request)
	if err != nil {
		return "", err
	}
	s.pending.add(call.UniqueId, call.Action, request)
	if err = s.enqueue(data, nil); err != nil {
		s.pending.take(call.UniqueId)
		return "", err
	}
	return call.UniqueId, nil
}

// SendAsync blocks until the frame was flushed to the socket.
func (s *Session) SendAsync(request ocpp.Request) (string, error) {
	call, data, err := s.buildCall(request)
	if err != nil {
		return "", err
	}
	s.pending.add(call.UniqueId, call.Action, request)
	done := make(chan error, 1)
	if err = s.enqueue(data, done); err != nil {
		s.pending.take(call.UniqueId)
		return "", err
	}
	if err = <-done; err != nil {
		s.pending.take(call.UniqueId)
		return "", err
	}
	return call.UniqueId, nil
}

// Call sends a request and waits for the correlated response, a CallError,
// the call timeout, or transport loss, whichever comes first.
func (s *Session) Call(request ocpp.Request) (ocpp.Response, error) {
	call, data, err := s.buildCall(request)
	if err != nil {
		return nil, err
	}
	pc := s.pending.add(call.UniqueId, call.Action, request)
	if err = s.enqueue(data, nil); err != nil {
		s.pending.take(call.UniqueId)
		return nil, err
	}
	outcome := <-pc.outcome
	return outcome.response, outcome.err
}

func (s *Session) buildCall(request ocpp.Request) (*ocpp.Call, []byte, error) {
	if err := ocpp.ValidateOutgoing(request); err != nil {
		return nil, nil, err
	}
	call := ocpp.NewCall(request)
	data, err := call.MarshalJSON()
	if err != nil {
		return nil, nil, err
	}
	return call, data, nil
}

// Respond sends a CallResult for a previously received request. Fire and forget.
func (s *Session) Respond(response ocpp.Response, uniqueId string) error {
	if err := ocpp.ValidateOutgoing(response); err != nil {
		return err
	}
	result := ocpp.CreateCallResult(response, uniqueId)
	data, err := result.MarshalJSON()
	if err != nil {
		return err
	}
	return s.enqueue(data, nil)
}

func (s *Session) RespondError(uniqueId string, code ocpp.ErrorCode, description string) error {
	callError := ocpp.CreateCallError(uniqueId, code, description)
	data, err := callError.MarshalJSON()
	if err != nil {
		return err
	}
	return s.enqueue(data, nil)
}

// Close is idempotent. Outstanding calls fail with ErrTransportClosed.
func (s *Session) Close() {
	s.mu.Lock()
	conn := s.conn
	if s.state == SessionOpen {
		s.state = SessionClosing
	}
	s.mu.Unlock()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}
	s.teardown(websocket.CloseNormalClosure, "closed by client")
}

func (s *Session) teardown(code int, reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = SessionClosed
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		close(s.done)
		s.pending.failAll(ErrTransportClosed)
		if s.point != nil {
			s.point.onSessionClosed()
		}
		s.logger.FeatureEvent("Disconnect", s.chargePointId, fmt.Sprintf("session closed (%d) %s", code, reason))
		if s.OnClose != nil {
			s.OnClose(code, reason)
		}
	})
}
