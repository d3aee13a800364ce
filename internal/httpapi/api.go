// Package httpapi exposes the HTTP surface: room creation and lookup, the
// participant WebSocket route, and the identity cookie both rely on.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/cortexuvula/roomsync/internal/registry"
	"github.com/cortexuvula/roomsync/internal/room"
	"github.com/cortexuvula/roomsync/internal/store"
)

// DefaultPreset is used when a creation request names neither options nor a preset.
const DefaultPreset = "fibonacci"

const maxBodyBytes = 8 << 10

var validate = validator.New()

// Rooms is the part of the session engine the API calls.
type Rooms interface {
	CreateRoom(ctx context.Context, options []room.Option) (*room.Room, error)
	RoomExists(ctx context.Context, roomCode string) (bool, error)
}

// Sockets serves an upgraded participant connection.
type Sockets interface {
	Serve(w http.ResponseWriter, r *http.Request, key registry.Key)
}

type CreateRoomRequest struct {
	Options []room.Option `json:"options" validate:"omitempty,min=2,max=16,excluded_with=Preset"`
	Preset  string        `json:"preset" validate:"omitempty,oneof=fibonacci modified-fibonacci powers-of-two yes-no"`
}

type CreateRoomResponse struct {
	RoomCode string `json:"roomCode"`
}

type LookupResponse struct {
	RoomCode string `json:"roomCode"`
	Exists   bool   `json:"exists"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// API wires the routes onto a gorilla/mux router.
type API struct {
	rooms        Rooms
	sockets      Sockets
	secureCookie bool
}

func New(rooms Rooms, sockets Sockets, secureCookie bool) *API {
	return &API{rooms: rooms, sockets: sockets, secureCookie: secureCookie}
}

// Router returns the public router.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(identity(a.secureCookie))
	r.HandleFunc("/api/rooms", a.createRoom).Methods(http.MethodPost)
	r.HandleFunc("/api/rooms/{roomCode}", a.lookupRoom).Methods(http.MethodGet)
	r.HandleFunc("/ws/{roomCode}", a.socket).Methods(http.MethodGet)
	return r
}

func (a *API) createRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	options, err := resolveOptions(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	doc, err := a.rooms.CreateRoom(r.Context(), options)
	if err != nil {
		if isOptionError(err) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		slog.Error("room creation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "room creation failed"})
		return
	}
	writeJSON(w, http.StatusCreated, CreateRoomResponse{RoomCode: doc.RoomCode})
}

func (a *API) lookupRoom(w http.ResponseWriter, r *http.Request) {
	code := store.NormalizeCode(mux.Vars(r)["roomCode"])
	exists, err := a.rooms.RoomExists(r.Context(), code)
	if err != nil {
		slog.Error("room lookup failed", "room", code, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "room lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, LookupResponse{RoomCode: code, Exists: exists})
}

func (a *API) socket(w http.ResponseWriter, r *http.Request) {
	key := registry.Key{
		RoomCode:      store.NormalizeCode(mux.Vars(r)["roomCode"]),
		ParticipantID: ParticipantID(r),
	}
	a.sockets.Serve(w, r, key)
}

func resolveOptions(req CreateRoomRequest) ([]room.Option, error) {
	if len(req.Options) > 0 {
		return req.Options, nil
	}
	preset := req.Preset
	if preset == "" {
		preset = DefaultPreset
	}
	return room.Preset(preset)
}

func isOptionError(err error) bool {
	return errors.Is(err, room.ErrTooFewOptions) ||
		errors.Is(err, room.ErrTooManyOptions) ||
		errors.Is(err, room.ErrMixedOptions) ||
		errors.Is(err, room.ErrDuplicateOption) ||
		errors.Is(err, room.ErrUnknownPreset)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing response failed", "error", err)
	}
}
