package status

import "time"

// SyncPhase represents the current phase of the sync engine
type SyncPhase string

const (
	// SyncPhaseUninitialized means the engine has not started loading yet
	SyncPhaseUninitialized SyncPhase = "Uninitialized"

	// SyncPhaseConnecting means the engine is waiting for the backend or re-arming
	// its subscription
	SyncPhaseConnecting SyncPhase = "Connecting"

	// SyncPhaseReady means the document is loaded and the subscription is live
	SyncPhaseReady SyncPhase = "Ready"

	// SyncPhaseFailed means the backend never became ready; only an explicit
	// retry leaves this phase
	SyncPhaseFailed SyncPhase = "Failed"
)

// SyncStatus represents the current state of document synchronization
type SyncStatus struct {
	// Phase represents the current synchronization phase
	Phase SyncPhase `json:"phase" yaml:"phase"`

	// Message provides additional information about the sync status
	Message string `json:"message,omitempty" yaml:"message,omitempty"`

	// DocumentPath is the remote document being mirrored
	DocumentPath string `json:"documentPath,omitempty" yaml:"documentPath,omitempty"`

	// LastAttempt is the timestamp of the last load or retry attempt
	LastAttempt *time.Time `json:"lastAttempt,omitempty" yaml:"lastAttempt,omitempty"`

	// AttemptCount is the number of load attempts since the last success
	AttemptCount int `json:"attemptCount,omitempty" yaml:"attemptCount,omitempty"`

	// LastLoadTime is the timestamp of the last successful initial load
	LastLoadTime *time.Time `json:"lastLoadTime,omitempty" yaml:"lastLoadTime,omitempty"`

	// LastPersistTime is the timestamp of the last successful document write
	LastPersistTime *time.Time `json:"lastPersistTime,omitempty" yaml:"lastPersistTime,omitempty"`

	// LastPersistError is the message of the last failed write, cleared on success
	LastPersistError string `json:"lastPersistError,omitempty" yaml:"lastPersistError,omitempty"`

	// LastSnapshotTime is the timestamp of the last applied remote snapshot
	LastSnapshotTime *time.Time `json:"lastSnapshotTime,omitempty" yaml:"lastSnapshotTime,omitempty"`

	// SnapshotCount is the number of remote snapshots applied by this process
	SnapshotCount int `json:"snapshotCount,omitempty" yaml:"snapshotCount,omitempty"`
}

// Clone returns a copy of s that shares no pointers with it.
func (s *SyncStatus) Clone() *SyncStatus {
	if s == nil {
		return nil
	}
	out := *s
	out.LastAttempt = cloneTime(s.LastAttempt)
	out.LastLoadTime = cloneTime(s.LastLoadTime)
	out.LastPersistTime = cloneTime(s.LastPersistTime)
	out.LastSnapshotTime = cloneTime(s.LastSnapshotTime)
	return &out
}

// Carry copies the history of a status saved by an earlier process onto s.
// Phase, message and counters describe this process and are left alone.
func (s *SyncStatus) Carry(prev *SyncStatus) {
	if prev == nil {
		return
	}
	s.LastLoadTime = cloneTime(prev.LastLoadTime)
	s.LastPersistTime = cloneTime(prev.LastPersistTime)
	s.LastPersistError = prev.LastPersistError
	s.LastSnapshotTime = cloneTime(prev.LastSnapshotTime)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
