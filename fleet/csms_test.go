package fleet

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"vcpsim/config"
	"vcpsim/internal"
	"vcpsim/types"
)

func testLogger() internal.LogHandler {
	sink := logrus.New()
	sink.SetOutput(io.Discard)
	return internal.NewLogger(sink)
}

type receivedFrame struct {
	TypeId  int
	Id      string
	Action  string
	Payload map[string]interface{}
}

// stubCSMS terminates charger sockets and answers calls with canned payloads,
// recording every frame per charge point id.
type stubCSMS struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu     sync.Mutex
	frames map[string][]receivedFrame
	txId   int
}

func newStubCSMS(t *testing.T) *stubCSMS {
	s := &stubCSMS{
		t:        t,
		upgrader: websocket.Upgrader{Subprotocols: []string{types.SubProtocol16}},
		frames:   make(map[string][]receivedFrame),
		txId:     42,
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.server.Close)
	return s
}

func (s *stubCSMS) URL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func (s *stubCSMS) handle(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	cpId := parts[len(parts)-1]
	s.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	var writeMu sync.Mutex
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var fields []json.RawMessage
		if json.Unmarshal(data, &fields) != nil || len(fields) < 3 {
			continue
		}
		frame := receivedFrame{}
		_ = json.Unmarshal(fields[0], &frame.TypeId)
		_ = json.Unmarshal(fields[1], &frame.Id)
		if frame.TypeId == 2 {
			_ = json.Unmarshal(fields[2], &frame.Action)
			_ = json.Unmarshal(fields[3], &frame.Payload)
		}
		s.mu.Lock()
		s.frames[cpId] = append(s.frames[cpId], frame)
		s.mu.Unlock()
		if frame.TypeId != 2 {
			continue
		}
		response, _ := json.Marshal([]interface{}{3, frame.Id, s.responsePayload(frame)})
		writeMu.Lock()
		_ = conn.WriteMessage(websocket.TextMessage, response)
		writeMu.Unlock()
	}
}

func (s *stubCSMS) responsePayload(frame receivedFrame) interface{} {
	now := time.Now().UTC().Format(types.ISO8601)
	switch frame.Action {
	case "BootNotification":
		return map[string]interface{}{"currentTime": now, "interval": 300, "status": "Accepted"}
	case "Heartbeat":
		return map[string]interface{}{"currentTime": now}
	case "Authorize":
		return map[string]interface{}{"idTagInfo": map[string]interface{}{"status": "Accepted"}}
	case "StartTransaction":
		s.mu.Lock()
		defer s.mu.Unlock()
		return map[string]interface{}{
			"idTagInfo":     map[string]interface{}{"status": "Accepted"},
			"transactionId": s.txId,
		}
	default:
		return map[string]interface{}{}
	}
}

func (s *stubCSMS) callsFor(cpId string) []receivedFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []receivedFrame
	for _, f := range s.frames[cpId] {
		if f.TypeId == 2 {
			out = append(out, f)
		}
	}
	return out
}

func (s *stubCSMS) actionsFor(cpId string) []string {
	var out []string
	for _, f := range s.callsFor(cpId) {
		out = append(out, f.Action)
	}
	return out
}

func testManagerConfig(t *testing.T, wsURL string) *config.Config {
	conf := &config.Config{}
	conf.WsURL = wsURL
	conf.RosterFile = filepath.Join(t.TempDir(), "chargers.json")
	conf.CacheDir = "" // skip badger in fleet tests, the store has its own
	return conf
}

// newTestManager builds a manager with the orchestration delays shortened so
// the full flows run in test time.
func newTestManager(t *testing.T, wsURL string) *Manager {
	m := NewManager(testManagerConfig(t, wsURL), testLogger())
	m.connectPause = 10 * time.Millisecond
	m.startTxDelay = 20 * time.Millisecond
	m.pollInterval = 20 * time.Millisecond
	m.suspendedDelay = func() time.Duration { return 20 * time.Millisecond }
	m.meterInterval = 100 * time.Millisecond
	t.Cleanup(func() {
		for _, view := range m.List() {
			if view.Connected {
				_ = m.Disconnect(view.CpId)
			}
		}
	})
	return m
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
