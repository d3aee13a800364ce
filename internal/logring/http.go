package logring

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultLimit = 100

// ServeHTTP answers GET requests with recent entries as JSON. Query
// parameters: room, level (debug|info|warn|error), limit, since (RFC 3339).
func (b *Buffer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(b.Query(f))
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	f := Filter{Limit: defaultLimit, MinLevel: slog.LevelDebug, Room: strings.ToUpper(q.Get("room"))}

	if v := q.Get("level"); v != "" {
		if err := f.MinLevel.UnmarshalText([]byte(v)); err != nil {
			return f, err
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, strconv.ErrSyntax
		}
		f.Limit = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.Since = t
	}
	return f, nil
}
