// Package logring keeps the most recent log records in memory so operators
// can inspect what happened in a room without shipping the log file around.
package logring

import (
	"log/slog"
	"sync"
	"time"
)

// RoomAttr is the log attribute that ties a record to a room.
const RoomAttr = "room"

// Entry is one captured log record.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   slog.Level     `json:"level"`
	Message string         `json:"message"`
	Room    string         `json:"room,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Filter selects entries from a Buffer. Zero fields match everything.
type Filter struct {
	Limit    int
	MinLevel slog.Level
	Since    time.Time
	Room     string
}

func (f Filter) match(e Entry) bool {
	if e.Level < f.MinLevel {
		return false
	}
	if !f.Since.IsZero() && e.Time.Before(f.Since) {
		return false
	}
	return f.Room == "" || e.Room == f.Room
}

// Buffer is a fixed-size circular log of entries, safe for concurrent use.
type Buffer struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	count   int
}

// New creates a buffer holding at most size entries.
func New(size int) *Buffer {
	if size < 1 {
		size = 1
	}
	return &Buffer{entries: make([]Entry, size)}
}

// Add stores e, overwriting the oldest entry once full.
func (b *Buffer) Add(e Entry) {
	b.mu.Lock()
	b.entries[b.next] = e
	b.next = (b.next + 1) % len(b.entries)
	if b.count < len(b.entries) {
		b.count++
	}
	b.mu.Unlock()
}

// Query returns matching entries, newest first.
func (b *Buffer) Query(f Filter) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := []Entry{}
	size := len(b.entries)
	for i := 0; i < b.count; i++ {
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
		e := b.entries[(b.next-1-i+size)%size]
		if f.match(e) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns how many entries are stored.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return len(b.entries)
}
