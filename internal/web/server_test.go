package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/danmuck/meshboard/internal/board"
	"github.com/danmuck/meshboard/internal/events"
	"github.com/danmuck/meshboard/internal/link"
	logs "github.com/danmuck/meshboard/internal/logging"
	"github.com/danmuck/meshboard/internal/protocol/session"
	"github.com/danmuck/meshboard/internal/store"
	"github.com/danmuck/meshboard/internal/testutil/testlog"
)

const (
	testBoard = "noteboard"
	testToken = "s3cret"
)

type fixedStatus link.Status

func (f fixedStatus) Status() link.Status { return link.Status(f) }

type fixture struct {
	srv   *Server
	notes *store.Store
	bus   *events.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	notes, err := store.Open(filepath.Join(t.TempDir(), "board.db"), store.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = notes.Close() })
	deferred := session.NewDeferred(context.Background())
	t.Cleanup(deferred.Close)

	bus := events.NewBus()
	svc := board.NewService(board.DefaultConfig(), notes, link.NewSession(testBoard, 0), deferred, bus)
	status := fixedStatus{State: link.StateDisconnected, ErrorMessage: "no radio"}
	return &fixture{
		srv:   New(Config{Addr: "127.0.0.1:0", AdminToken: testToken}, svc, status, bus),
		notes: notes,
		bus:   bus,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any, header http.Header) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rr, req)

	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s %s body=%q: %v", method, path, rr.Body.String(), err)
	}
	return rr.Code, out
}

func notesPath(parts ...string) string {
	return "/api/boards/" + testBoard + "/notes" + strings.Join(parts, "")
}

func TestHealthAndChannelName(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/health", nil, nil)
	if code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health: %d %#v", code, body)
	}
	code, body = f.do(t, http.MethodGet, "/api/config/channel_name", nil, nil)
	if code != http.StatusOK || body["channel_name"] != testBoard {
		t.Fatalf("unexpected channel name: %d %#v", code, body)
	}
	code, body = f.do(t, http.MethodGet, "/api/status", nil, nil)
	if code != http.StatusOK || body["online"] != false || body["error_message"] != "no radio" {
		t.Fatalf("unexpected status: %d %#v", code, body)
	}
	logs.Logf("web/http: health, channel name and status served")
}

func TestCreateAndListNotes(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, notesPath(), map[string]any{"text": "hello", "author_key": "user-1", "color_index": 3}, nil)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %#v", code, body)
	}
	note := body["note"].(map[string]any)
	if note["status"] != string(store.StatusLanOnly) || note["bgColor"] != board.ColorFor(3) || note["sender"] != "WebUser" {
		t.Fatalf("unexpected note: %#v", note)
	}

	code, body = f.do(t, http.MethodGet, notesPath(), nil, nil)
	if code != http.StatusOK || body["count"].(float64) != 1 {
		t.Fatalf("unexpected list: %d %#v", code, body)
	}
	logs.Logf("web/http: created and listed note=%v", note["noteId"])
}

func TestCreateNoteErrors(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)

	code, _ := f.do(t, http.MethodPost, notesPath(), map[string]any{"text": ""}, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty text, got %d", code)
	}
	code, _ = f.do(t, http.MethodPost, notesPath(), map[string]any{"text": strings.Repeat("x", 300)}, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for long text, got %d", code)
	}
	code, _ = f.do(t, http.MethodPost, notesPath(), map[string]any{"text": "re", "parent_note_id": "404"}, nil)
	if code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown parent, got %d", code)
	}
}

func TestAuthorizationMapsToForbidden(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	_, body := f.do(t, http.MethodPost, notesPath(), map[string]any{"text": "mine", "author_key": "user-1"}, nil)
	id := body["note_id"].(string)

	code, _ := f.do(t, http.MethodPut, notesPath("/", id), map[string]any{"text": "theirs", "author_key": "user-2"}, nil)
	if code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign edit, got %d", code)
	}
	code, _ = f.do(t, http.MethodPost, notesPath("/", id, "/archive"), map[string]any{"author_key": "user-1"}, nil)
	if code != http.StatusForbidden {
		t.Fatalf("expected 403 archiving LAN only note, got %d", code)
	}
	code, _ = f.do(t, http.MethodPost, notesPath("/", id, "/pin"), nil, nil)
	if code != http.StatusForbidden {
		t.Fatalf("expected 403 pin without admin token, got %d", code)
	}
	code, body = f.do(t, http.MethodPost, notesPath("/", id, "/pin"), nil, http.Header{AdminHeader: []string{testToken}})
	if code != http.StatusOK || body["note"].(map[string]any)["isPinnedNote"] != true {
		t.Fatalf("expected admin pin, got %d %#v", code, body)
	}
	code, _ = f.do(t, http.MethodDelete, notesPath("/", id), map[string]any{"author_key": "user-1"}, nil)
	if code != http.StatusOK {
		t.Fatalf("expected delete, got %d", code)
	}
	code, _ = f.do(t, http.MethodPut, notesPath("/", id), map[string]any{"text": "gone", "author_key": "user-1"}, nil)
	if code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", code)
	}
}

func TestResendWithoutLinkIsUnavailable(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	code, _ := f.do(t, http.MethodPost, notesPath("/any/resend"), map[string]any{"author_key": "user-1"}, nil)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
}

func TestListAcks(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	ctx := context.Background()
	n, _, err := f.notes.CreateRadioNote(ctx, store.RadioNote{BoardID: testBoard, LoraMsgID: "9", Body: "x", AuthorKey: "lora-a"})
	if err != nil {
		t.Fatalf("radio note: %v", err)
	}
	if _, _, err := f.notes.UpsertAck(ctx, n.NoteID, "lora-!abcdef12"); err != nil {
		t.Fatalf("ack: %v", err)
	}

	code, body := f.do(t, http.MethodGet, notesPath("/", n.NoteID, "/acks"), nil, nil)
	if code != http.StatusOK || body["count"].(float64) != 1 {
		t.Fatalf("unexpected acks: %d %#v", code, body)
	}
	ack := body["acks"].([]any)[0].(map[string]any)
	if ack["displayId"] != "LoRa-ef12" {
		t.Fatalf("unexpected ack view: %#v", ack)
	}
}

func TestEventStream(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first map[string]any
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if first["event"] != string(events.KindLoraStatus) {
		t.Fatalf("expected initial status, got %#v", first)
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.bus.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	f.bus.Publish(events.Refresh(testBoard))

	var next map[string]any
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read refresh: %v", err)
	}
	data := next["data"].(map[string]any)
	if next["event"] != string(events.KindRefreshNotes) || data["board_id"] != testBoard {
		t.Fatalf("unexpected event: %#v", next)
	}
	logs.Logf("web/ws: streamed %v then %v", first["event"], next["event"])
}
