//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/cortexuvula/roomsync/internal/config"
	"github.com/cortexuvula/roomsync/internal/health"
	"github.com/cortexuvula/roomsync/internal/httpapi"
	"github.com/cortexuvula/roomsync/internal/registry"
	"github.com/cortexuvula/roomsync/internal/session"
	"github.com/cortexuvula/roomsync/internal/store"
	"github.com/cortexuvula/roomsync/internal/ws"
)

type stack struct {
	public *httptest.Server
	health *httptest.Server
}

// newTestStack wires store, engine, transport, API and health the way
// the start command does, on test listeners.
func newTestStack(t *testing.T) *stack {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Security.RateLimit.Enabled = false
	cfg.Server.PingInterval = 0

	bunt, err := store.OpenBunt(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	rooms, err := store.NewCached(bunt, cfg.Store.CacheSize)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	reg := registry.New()
	engine, err := session.New(rooms, reg)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	stats := ws.NewStats()
	wsHandler := ws.NewHandler(cfg, engine, stats, nil, context.Background())
	public := httptest.NewServer(httpapi.New(engine, wsHandler, false).Router())

	healthMux := http.NewServeMux()
	healthMux.Handle("/health", health.NewHandler(stats, rooms, reg, "test", true))
	healthSrv := httptest.NewServer(healthMux)

	t.Cleanup(func() {
		public.Close()
		healthSrv.Close()
		rooms.Close()
	})
	return &stack{public: public, health: healthSrv}
}

func (s *stack) createRoom(t *testing.T, body string) string {
	t.Helper()
	resp, err := http.Post(s.public.URL+"/api/rooms", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create room status = %d", resp.StatusCode)
	}
	var out httpapi.CreateRoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out.RoomCode
}

type client struct {
	t  *testing.T
	id string
	c  *websocket.Conn
}

func (s *stack) connect(t *testing.T, ctx context.Context, code string) *client {
	t.Helper()
	id := uuid.NewString()
	header := http.Header{}
	header.Set("Cookie", httpapi.CookieName+"="+id)

	wsURL := "ws" + strings.TrimPrefix(s.public.URL, "http") + "/ws/" + strings.ToLower(code)
	c, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.CloseNow() })

	cl := &client{t: t, id: id, c: c}
	hello := cl.expect(ctx, "Connected")
	if hello["userId"] != id || hello["roomExists"] != true {
		t.Fatalf("greeting = %v", hello)
	}
	return cl
}

func (cl *client) send(ctx context.Context, msg string) {
	cl.t.Helper()
	if err := cl.c.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
		cl.t.Fatalf("write: %v", err)
	}
}

// expect reads until a message with the given event arrives.
func (cl *client) expect(ctx context.Context, event string) map[string]any {
	cl.t.Helper()
	for {
		_, data, err := cl.c.Read(ctx)
		if err != nil {
			cl.t.Fatalf("waiting for %s: %v", event, err)
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg["event"] == event {
			return msg
		}
	}
}

func (cl *client) room(ctx context.Context) map[string]any {
	cl.t.Helper()
	return cl.expect(ctx, "RoomUpdate")["roomData"].(map[string]any)
}

func TestVotingRound(t *testing.T) {
	s := newTestStack(t)
	code := s.createRoom(t, `{"preset":"fibonacci"}`)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mod := s.connect(t, ctx, code)
	mod.send(ctx, `{"event":"Join","name":"Mia"}`)
	if m := mod.room(ctx)["moderator"].(map[string]any); m["id"] != mod.id {
		t.Fatalf("moderator = %v, want %s", m, mod.id)
	}

	voter := s.connect(t, ctx, code)
	voter.send(ctx, `{"event":"Join","name":"Vic"}`)
	voter.room(ctx)
	if voters := mod.room(ctx)["voters"].([]any); len(voters) != 1 {
		t.Fatalf("voters = %v, want one", voters)
	}

	mod.send(ctx, `{"event":"StartVoting"}`)
	if st := voter.room(ctx)["state"]; st != "Voting" {
		t.Fatalf("state = %v, want Voting", st)
	}
	mod.room(ctx)

	voter.send(ctx, `{"event":"OptionSelected","selection":5}`)
	doc := mod.room(ctx)
	v := doc["voters"].([]any)[0].(map[string]any)
	if v["selection"] != float64(5) || v["confidence"] != "High" {
		t.Errorf("vote = %v, want selection 5 with High confidence", v)
	}
	voter.room(ctx)

	mod.send(ctx, `{"event":"StopVoting"}`)
	if st := voter.room(ctx)["state"]; st != "Results" {
		t.Errorf("state = %v, want Results", st)
	}
	mod.room(ctx)

	resp, err := http.Get(s.health.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	var h health.Response
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if h.ActiveConnections != 2 || h.ActiveRooms != 1 || h.StoredRooms != 1 {
		t.Errorf("health = %+v", h)
	}

	mod.send(ctx, `{"event":"KickVoter","voterId":"`+voter.id+`"}`)
	voter.expect(ctx, "Kicked")
	if voters := mod.room(ctx)["voters"].([]any); len(voters) != 0 {
		t.Errorf("voters after kick = %v, want none", voters)
	}
}

func TestLookupRoom(t *testing.T) {
	s := newTestStack(t)
	code := s.createRoom(t, `{"options":["Yes","No"]}`)

	for path, want := range map[string]bool{code: true, strings.ToLower(code): true, "QQQQ": false} {
		resp, err := http.Get(s.public.URL + "/api/rooms/" + path)
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		var out httpapi.LookupResponse
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.Exists != want {
			t.Errorf("lookup %s exists = %v, want %v", path, out.Exists, want)
		}
	}
}
