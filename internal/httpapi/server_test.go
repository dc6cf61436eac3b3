package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ent0n29/gemini-relay/internal/backend"
	"github.com/ent0n29/gemini-relay/internal/config"
	"github.com/ent0n29/gemini-relay/internal/conversation"
	"github.com/ent0n29/gemini-relay/internal/observability"
	"github.com/ent0n29/gemini-relay/internal/protocol"
	"github.com/ent0n29/gemini-relay/internal/reply"
	"github.com/ent0n29/gemini-relay/internal/transcript"
)

func newTestServer(t *testing.T, archive transcript.Archive) (*httptest.Server, *reply.Service) {
	t.Helper()
	cfg := config.Config{ModelProvider: "echo", ModelName: "test-model", MemoryLimit: 4}
	metrics := observability.NewMetrics("test_httpapi", prometheus.NewRegistry())
	svc := reply.NewService(conversation.NewStore(cfg.MemoryLimit), backend.NewEchoBackend(), reply.Config{},
		reply.WithMetrics(metrics), reply.WithLogger(zerolog.Nop()))
	srv := New(cfg, svc, archive, metrics)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, svc
}

func postMessage(t *testing.T, ts *httptest.Server, id, text string) (*http.Response, messageResponse) {
	t.Helper()
	body, _ := json.Marshal(messageRequest{Text: text})
	res, err := http.Post(ts.URL+"/v1/conversations/"+id+"/messages", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST messages error = %v", err)
	}
	defer res.Body.Close()
	var out messageResponse
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res, out
}

func TestPostMessageAndHistory(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	res, out := postMessage(t, ts, "u1", "hi")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if out.Reply != "echo:user: hi" {
		t.Fatalf("reply = %q, want %q", out.Reply, "echo:user: hi")
	}

	hres, err := http.Get(ts.URL + "/v1/conversations/u1/history")
	if err != nil {
		t.Fatalf("GET history error = %v", err)
	}
	defer hres.Body.Close()
	var hist historyResponse
	if err := json.NewDecoder(hres.Body).Decode(&hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(hist.Turns) != 2 || hist.Turns[0].Role != conversation.RoleUser || hist.Turns[1].Content != out.Reply {
		t.Fatalf("unexpected history: %+v", hist)
	}
	if hist.Limit != 4 {
		t.Fatalf("limit = %d, want 4", hist.Limit)
	}
}

func TestPostMessageRejectsEmptyText(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	res, _ := postMessage(t, ts, "u1", "  ")
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestResetHistory(t *testing.T) {
	ts, svc := newTestServer(t, nil)
	postMessage(t, ts, "u1", "hi")

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/conversations/u1/history", nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE history error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNoContent)
	}
	if got := svc.History("u1"); len(got) != 0 {
		t.Fatalf("history after reset = %+v, want empty", got)
	}
}

func TestTranscriptDisabled(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	res, err := http.Get(ts.URL + "/v1/conversations/u1/transcript")
	if err != nil {
		t.Fatalf("GET transcript error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestTranscriptFromArchive(t *testing.T) {
	archive := transcript.NewInMemoryArchive()
	ts, _ := newTestServer(t, archive)
	_ = archive.Record(context.Background(), reply.Exchange{
		TurnID:         "t1",
		ConversationID: "u1",
		User:           conversation.UserTurn("hi"),
		Assistant:      conversation.AssistantTurn("hello"),
		Stored:         true,
	})

	res, err := http.Get(ts.URL + "/v1/conversations/u1/transcript?limit=10")
	if err != nil {
		t.Fatalf("GET transcript error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var payload struct {
		Entries []transcript.Entry `json:"entries"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode transcript: %v", err)
	}
	if len(payload.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(payload.Entries))
	}

	bad, err := http.Get(ts.URL + "/v1/conversations/u1/transcript?limit=zero")
	if err != nil {
		t.Fatalf("GET transcript error = %v", err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", bad.StatusCode, http.StatusBadRequest)
	}
}

func TestHealthStatusAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	postMessage(t, ts, "u1", "hi")

	for _, path := range []string{"/healthz", "/readyz", "/v1/status", "/v1/perf/latency"} {
		res, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want %d", path, res.StatusCode, http.StatusOK)
		}
	}

	res, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(body), "test_httpapi_generate_total") {
		t.Fatalf("metrics body missing generate counter")
	}
}

func TestPerfLatencyReset(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	postMessage(t, ts, "u1", "hi")

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/v1/perf/latency", nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNoContent)
	}

	res, err = http.Get(ts.URL + "/v1/perf/latency")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer res.Body.Close()
	var snap observability.LatencySnapshot
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if len(snap.Stages) != 0 {
		t.Fatalf("stages = %d, want 0 after reset", len(snap.Stages))
	}
}

func TestConversationWebSocket(t *testing.T) {
	ts, svc := newTestServer(t, nil)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/conversations/ws?conversation_id=w1"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello protocol.SystemEvent
	if err := conn.ReadJSON(&hello); err != nil || hello.Code != "connected" {
		t.Fatalf("first message = %+v, err = %v", hello, err)
	}

	if err := conn.WriteJSON(protocol.UserMessage{Type: protocol.TypeUserMessage, Text: "hi", ClientMsgID: "m1"}); err != nil {
		t.Fatalf("write error = %v", err)
	}
	var replyMsg protocol.AssistantReply
	if err := conn.ReadJSON(&replyMsg); err != nil {
		t.Fatalf("read reply error = %v", err)
	}
	if replyMsg.Type != protocol.TypeAssistantReply || replyMsg.Text != "echo:user: hi" || replyMsg.ReplyTo != "m1" {
		t.Fatalf("unexpected reply: %+v", replyMsg)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"nope"}`)); err != nil {
		t.Fatalf("write error = %v", err)
	}
	var errEvent protocol.ErrorEvent
	if err := conn.ReadJSON(&errEvent); err != nil || errEvent.Code != "invalid_client_message" {
		t.Fatalf("error event = %+v, err = %v", errEvent, err)
	}

	if err := conn.WriteJSON(protocol.ResetRequest{Type: protocol.TypeReset}); err != nil {
		t.Fatalf("write error = %v", err)
	}
	var reset protocol.HistoryReset
	if err := conn.ReadJSON(&reset); err != nil || reset.Type != protocol.TypeHistoryReset {
		t.Fatalf("reset = %+v, err = %v", reset, err)
	}
	if got := svc.History("w1"); len(got) != 0 {
		t.Fatalf("history after ws reset = %+v, want empty", got)
	}
}

func TestConversationWebSocketRequiresID(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	res, err := http.Get(ts.URL + "/v1/conversations/ws")
	if err != nil {
		t.Fatalf("GET ws error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestCheckOriginRejectsForeignBrowser(t *testing.T) {
	srv := New(config.Config{}, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "http://relay.local/v1/conversations/ws", nil)
	req.Header.Set("Origin", "https://evil.example")
	if srv.upgrader.CheckOrigin(req) {
		t.Fatalf("CheckOrigin() = true, want false for foreign origin")
	}
	req.Header.Set("Origin", "http://relay.local")
	if !srv.upgrader.CheckOrigin(req) {
		t.Fatalf("CheckOrigin() = false, want true for same origin")
	}
}
