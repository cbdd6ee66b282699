// Package session authenticates students and admins against the portal
// state and remembers the logged-in principal across restarts.
package session

import (
	"errors"
	"fmt"

	"github.com/dsiportal/placement-sync/internal/portal"
)

// Kind is the principal kind. Students and admins are mutually exclusive.
type Kind string

const (
	// KindStudent logs in with a USN and password
	KindStudent Kind = "student"
	// KindAdmin logs in with a username and password
	KindAdmin Kind = "admin"
)

var (
	// ErrInvalidCredentials is returned when no principal matches the credentials
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnknownKind is returned for a principal kind other than student or admin
	ErrUnknownKind = errors.New("unknown principal kind")
)

// ParseKind validates a principal kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindStudent, KindAdmin:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Credentials is a login attempt. Identifier holds the USN of a student or
// the username of an admin.
type Credentials struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// Principal is the logged-in student or admin. Exactly one of Student and
// Admin is set.
type Principal struct {
	Kind    Kind            `json:"kind"`
	Student *portal.Student `json:"student,omitempty"`
	Admin   *portal.Admin   `json:"admin,omitempty"`
}

// Key returns the business key identifying the principal.
func (p Principal) Key() string {
	switch {
	case p.Student != nil:
		return p.Student.USN
	case p.Admin != nil:
		return p.Admin.Username
	}
	return ""
}

// Record is the persisted reference to a principal.
type Record struct {
	Kind Kind   `yaml:"kind" json:"kind"`
	Key  string `yaml:"key" json:"key"`
}
