package security

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ClientIP returns the remote IP of r without its port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.Trim(r.RemoteAddr, "[]")
	}
	return host
}

// ValidParticipantID reports whether id has the shape of an issued identity.
func ValidParticipantID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// NewParticipantID issues a fresh opaque identity.
func NewParticipantID() string {
	return uuid.NewString()
}
