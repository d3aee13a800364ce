package logring

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTeeCapturesAndForwards(t *testing.T) {
	var out bytes.Buffer
	b := New(10)
	logger := slog.New(NewTee(slog.NewTextHandler(&out, nil), b))

	logger.With("room", "ABCD").Info("voter joined", "participant", "p1")

	if !strings.Contains(out.String(), "voter joined") {
		t.Errorf("inner handler output = %q", out.String())
	}
	got := b.Query(Filter{})
	if len(got) != 1 {
		t.Fatalf("captured %d entries, want 1", len(got))
	}
	e := got[0]
	if e.Room != "ABCD" {
		t.Errorf("Room = %q, want ABCD", e.Room)
	}
	if e.Attrs["participant"] != "p1" {
		t.Errorf("participant attr = %v, want p1", e.Attrs["participant"])
	}
}

func TestTeeGroups(t *testing.T) {
	b := New(10)
	logger := slog.New(NewTee(slog.NewTextHandler(&bytes.Buffer{}, nil), b))

	logger.With("service", "roomsync").WithGroup("req").With("id", 7).Info("done", "status", 200)

	attrs := b.Query(Filter{})[0].Attrs
	for _, key := range []string{"service", "req.id", "req.status"} {
		if _, ok := attrs[key]; !ok {
			t.Errorf("missing attr %q in %v", key, attrs)
		}
	}
}

func TestTeeEnabledFollowsInner(t *testing.T) {
	inner := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	tee := NewTee(inner, New(1))

	if tee.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled when inner is warn")
	}
	if !tee.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled")
	}
}

func TestServeHTTP(t *testing.T) {
	b := New(10)
	b.Add(Entry{Message: "a", Level: slog.LevelInfo, Room: "ABCD"})
	b.Add(Entry{Message: "b", Level: slog.LevelError, Room: "WXYZ"})

	rec := httptest.NewRecorder()
	b.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs?room=abcd", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got []Entry
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Message != "a" {
		t.Errorf("entries = %+v, want [a]", got)
	}

	for _, q := range []string{"level=loud", "limit=x", "since=yesterday"} {
		rec := httptest.NewRecorder()
		b.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs?"+q, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}
