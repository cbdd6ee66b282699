package v1

import (
	"github.com/dsiportal/placement-sync/internal/connection"
	"github.com/dsiportal/placement-sync/internal/portal"
	"github.com/dsiportal/placement-sync/internal/session"
	"github.com/dsiportal/placement-sync/internal/status"
)

// HealthResponse is the body of the health and readiness probes
type HealthResponse struct {
	Status string `json:"status"`
}

// Counts summarizes the collections of the portal state
type Counts struct {
	Jobs          int `json:"jobs"`
	Students      int `json:"students"`
	Admins        int `json:"admins"`
	Notifications int `json:"notifications"`
	Unread        int `json:"unread"`
	Shortlists    int `json:"shortlists"`
}

// StateResponse describes the mirrored document
type StateResponse struct {
	Phase        status.SyncPhase  `json:"phase"`
	Connection   connection.Status `json:"connection,omitempty"`
	DocumentPath string            `json:"documentPath,omitempty"`
	Counts       Counts            `json:"counts"`
}

// JobsResponse lists the visible jobs
type JobsResponse struct {
	Jobs  []portal.Job `json:"jobs"`
	Total int          `json:"total"`
}

// NotificationsResponse lists the feed, newest first
type NotificationsResponse struct {
	Notifications []portal.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
}

// AddNotificationResponse reports the outcome of an add. Added is false when
// an identical notification already existed.
type AddNotificationResponse struct {
	Notification portal.Notification `json:"notification"`
	Added        bool                `json:"added"`
	PersistError string              `json:"persistError,omitempty"`
}

// LoginRequest is a login attempt
type LoginRequest struct {
	Kind       string `json:"kind"`
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// SessionResponse describes the current principal. Passwords are never
// included.
type SessionResponse struct {
	Authenticated bool            `json:"authenticated"`
	Kind          session.Kind    `json:"kind,omitempty"`
	Student       *portal.Student `json:"student,omitempty"`
	Admin         *portal.Admin   `json:"admin,omitempty"`
}

func newSessionResponse(p session.Principal) SessionResponse {
	resp := SessionResponse{Authenticated: true, Kind: p.Kind}
	if p.Student != nil {
		s := withoutPassword(*p.Student)
		resp.Student = &s
	}
	if p.Admin != nil {
		a := *p.Admin
		a.Password = ""
		resp.Admin = &a
	}
	return resp
}

// StudentsResponse lists the students without their passwords
type StudentsResponse struct {
	Students []portal.Student `json:"students"`
	Total    int              `json:"total"`
}

// CriteriaResponse carries eligibility criteria. JobSpecific is set when a
// job overrides the global criteria.
type CriteriaResponse struct {
	Criteria    portal.Criteria `json:"criteria"`
	JobSpecific bool            `json:"jobSpecific,omitempty"`
}
