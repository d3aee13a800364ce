package ws

import (
	"sync"
	"sync/atomic"
)

// Stats tracks active connections globally and per client, and counts
// inbound messages.
type Stats struct {
	activeConnections atomic.Int64
	totalConnections  atomic.Int64
	totalMessages     atomic.Int64

	clientConnections map[string]int
	clientMu          sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		clientConnections: make(map[string]int),
	}
}

// ConnectionCount returns the current number of active connections.
func (s *Stats) ConnectionCount() int {
	return int(s.activeConnections.Load())
}

// ConnectionCountFor returns the active connection count for one client.
func (s *Stats) ConnectionCountFor(client string) int {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	return s.clientConnections[client]
}

// Limit reasons returned by TryIncrementConnections.
const (
	LimitGlobal    = "max_connections"
	LimitPerClient = "max_connections_per_client"
)

// TryIncrementConnections atomically checks limits and increments counters.
// Returns "" on success, or the limit that was hit.
func (s *Stats) TryIncrementConnections(client string, maxGlobal, maxPerClient int) string {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()

	// Read the atomic under the lock so check and increment cannot interleave.
	if int(s.activeConnections.Load()) >= maxGlobal {
		return LimitGlobal
	}
	if s.clientConnections[client] >= maxPerClient {
		return LimitPerClient
	}

	s.activeConnections.Add(1)
	s.totalConnections.Add(1)
	s.clientConnections[client]++
	return ""
}

// DecrementConnections releases one connection held by client.
func (s *Stats) DecrementConnections(client string) {
	s.activeConnections.Add(-1)
	s.clientMu.Lock()
	s.clientConnections[client]--
	if s.clientConnections[client] <= 0 {
		delete(s.clientConnections, client)
	}
	s.clientMu.Unlock()
}

// IncrementMessages counts one inbound message.
func (s *Stats) IncrementMessages() {
	s.totalMessages.Add(1)
}

// TotalConnections returns the number of connections accepted since start.
func (s *Stats) TotalConnections() int64 {
	return s.totalConnections.Load()
}

// TotalMessages returns the number of inbound messages since start.
func (s *Stats) TotalMessages() int64 {
	return s.totalMessages.Load()
}
