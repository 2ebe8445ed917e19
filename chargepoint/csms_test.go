package chargepoint

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"vcpsim/internal"
	"vcpsim/types"
)

func testLogger() internal.LogHandler {
	sink := logrus.New()
	sink.SetOutput(io.Discard)
	return internal.NewLogger(sink)
}

// receivedFrame is one frame the stub central system read from a charger.
type receivedFrame struct {
	TypeId  int
	Id      string
	Action  string
	Payload map[string]interface{}
}

// stubCSMS is a minimal scripted central system: it answers every call with a
// canned payload per action and records everything it receives.
type stubCSMS struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	frames   []receivedFrame
	conns    []*websocket.Conn
	txId     int
	silent   map[string]bool
	interval int
}

func newStubCSMS(t *testing.T) *stubCSMS {
	s := &stubCSMS{
		t:        t,
		upgrader: websocket.Upgrader{Subprotocols: []string{types.SubProtocol16}},
		txId:     42,
		silent:   make(map[string]bool),
		interval: 300,
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.server.Close)
	return s
}

func (s *stubCSMS) URL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func (s *stubCSMS) handle(w http.ResponseWriter, r *http.Request) {
	s.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.consume(conn, data)
	}
}

func (s *stubCSMS) consume(conn *websocket.Conn, data []byte) {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || len(fields) < 3 {
		return
	}
	frame := receivedFrame{}
	_ = json.Unmarshal(fields[0], &frame.TypeId)
	_ = json.Unmarshal(fields[1], &frame.Id)
	switch frame.TypeId {
	case 2:
		_ = json.Unmarshal(fields[2], &frame.Action)
		_ = json.Unmarshal(fields[3], &frame.Payload)
	case 3:
		_ = json.Unmarshal(fields[2], &frame.Payload)
	case 4:
		// the error code lands in Action for easy assertions
		_ = json.Unmarshal(fields[2], &frame.Action)
	}
	s.mu.Lock()
	s.frames = append(s.frames, frame)
	skip := frame.TypeId == 2 && s.silent[frame.Action]
	s.mu.Unlock()

	if frame.TypeId != 2 || skip {
		return
	}
	payload := s.responsePayload(frame)
	response, _ := json.Marshal([]interface{}{3, frame.Id, payload})
	s.mu.Lock()
	_ = conn.WriteMessage(websocket.TextMessage, response)
	s.mu.Unlock()
}

func (s *stubCSMS) responsePayload(frame receivedFrame) interface{} {
	now := time.Now().UTC().Format(types.ISO8601)
	switch frame.Action {
	case "BootNotification":
		return map[string]interface{}{"currentTime": now, "interval": s.interval, "status": "Accepted"}
	case "Heartbeat":
		return map[string]interface{}{"currentTime": now}
	case "Authorize", "StartTransaction":
		payload := map[string]interface{}{"idTagInfo": map[string]interface{}{"status": "Accepted"}}
		if frame.Action == "StartTransaction" {
			s.mu.Lock()
			payload["transactionId"] = s.txId
			s.mu.Unlock()
		}
		return payload
	default:
		return map[string]interface{}{}
	}
}

// inject sends a raw frame from the central system to the first connection.
func (s *stubCSMS) inject(frame interface{}) {
	data, err := json.Marshal(frame)
	if err != nil {
		s.t.Fatal(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		s.t.Fatal("no charger connected")
	}
	if err = s.conns[0].WriteMessage(websocket.TextMessage, data); err != nil {
		s.t.Fatal(err)
	}
}

func (s *stubCSMS) muteAction(action string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent[action] = true
}

func (s *stubCSMS) received() []receivedFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]receivedFrame, len(s.frames))
	copy(out, s.frames)
	return out
}

// calls returns only the Type 2 frames, in arrival order.
func (s *stubCSMS) calls() []receivedFrame {
	var out []receivedFrame
	for _, f := range s.received() {
		if f.TypeId == 2 {
			out = append(out, f)
		}
	}
	return out
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within", timeout)
}
