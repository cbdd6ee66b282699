package portal

import (
	"context"
	"encoding/json"
)

// NotificationType classifies a notification for display.
type NotificationType string

const (
	// NotificationInfo is the default notification type.
	NotificationInfo NotificationType = "info"
	// NotificationSuccess marks a positive outcome.
	NotificationSuccess NotificationType = "success"
	// NotificationWarning marks something needing attention.
	NotificationWarning NotificationType = "warning"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationInfo, NotificationSuccess, NotificationWarning:
		return true
	default:
		return false
	}
}

// Criteria holds minimum academic marks for eligibility.
type Criteria struct {
	Min10thMarks float64 `json:"min10thMarks"`
	Min12thMarks float64 `json:"min12thMarks"`
	MinCGPAMarks float64 `json:"minCGPAMarks"`
}

type criteriaFields Criteria

// UnmarshalJSON implements json.Unmarshaler. Marks saved from the admin form
// as text decode as numbers.
func (c *Criteria) UnmarshalJSON(data []byte) error {
	data, err := coerceNumbers(data, false, "min10thMarks", "min12thMarks", "minCGPAMarks")
	if err != nil {
		return err
	}
	return json.Unmarshal(data, (*criteriaFields)(c))
}

// DefaultCriteria returns the criteria used when the document has none.
func DefaultCriteria() Criteria {
	return Criteria{Min10thMarks: 60, Min12thMarks: 60, MinCGPAMarks: 6.0}
}

// Job is a placement drive listing.
type Job struct {
	ID                   int       `json:"id"`
	Company              string    `json:"company,omitempty"`
	Role                 string    `json:"role,omitempty"`
	Description          string    `json:"description,omitempty"`
	Location             string    `json:"location,omitempty"`
	Package              string    `json:"package,omitempty"`
	Deadline             string    `json:"deadline,omitempty"`
	Status               string    `json:"status,omitempty"`
	AcademicRequirements *Criteria `json:"academicRequirements,omitempty"`

	Extra Extra `json:"-"`
}

type jobFields Job

// MarshalJSON implements json.Marshaler.
func (j Job) MarshalJSON() ([]byte, error) {
	return encodeWithExtra(jobFields(j), j.Extra)
}

// UnmarshalJSON implements json.Unmarshaler. Ids stored as text decode too.
func (j *Job) UnmarshalJSON(data []byte) error {
	data, err := coerceNumbers(data, true, "id")
	if err != nil {
		return err
	}
	var fields jobFields
	extra, err := decodeWithExtra(data, &fields)
	if err != nil {
		return err
	}
	*j = Job(fields)
	j.Extra = extra
	return nil
}

func (j Job) clone() Job {
	out := j
	if j.AcademicRequirements != nil {
		c := *j.AcademicRequirements
		out.AcademicRequirements = &c
	}
	out.Extra = j.Extra.clone()
	return out
}

// Student is a registered student principal. Profile fields such as marks
// stay in Extra exactly as the web client wrote them.
type Student struct {
	ID       StringID `json:"id"`
	USN      string   `json:"usn"`
	Name     string   `json:"name,omitempty"`
	Email    string   `json:"email,omitempty"`
	Password string   `json:"password,omitempty"`
	Branch   string   `json:"branch,omitempty"`

	Extra Extra `json:"-"`
}

type studentFields Student

// MarshalJSON implements json.Marshaler.
func (s Student) MarshalJSON() ([]byte, error) {
	return encodeWithExtra(studentFields(s), s.Extra)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Student) UnmarshalJSON(data []byte) error {
	var fields studentFields
	extra, err := decodeWithExtra(data, &fields)
	if err != nil {
		return err
	}
	*s = Student(fields)
	s.Extra = extra
	return nil
}

func (s Student) clone() Student {
	out := s
	out.Extra = s.Extra.clone()
	return out
}

// Admin is a placement-office principal.
type Admin struct {
	ID       StringID `json:"id"`
	Username string   `json:"username"`
	Password string   `json:"password,omitempty"`
	Name     string   `json:"name,omitempty"`
	Email    string   `json:"email,omitempty"`

	Extra Extra `json:"-"`
}

type adminFields Admin

// MarshalJSON implements json.Marshaler.
func (a Admin) MarshalJSON() ([]byte, error) {
	return encodeWithExtra(adminFields(a), a.Extra)
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Admin) UnmarshalJSON(data []byte) error {
	var fields adminFields
	extra, err := decodeWithExtra(data, &fields)
	if err != nil {
		return err
	}
	*a = Admin(fields)
	a.Extra = extra
	return nil
}

func (a Admin) clone() Admin {
	out := a
	out.Extra = a.Extra.clone()
	return out
}

// ActionFunc is an in-memory action callback. It never survives serialization.
type ActionFunc func(ctx context.Context) error

// Action is the optional call-to-action attached to a notification. Text and
// Link are the persisted form; Callback is attached locally after load.
type Action struct {
	Text     string     `json:"text"`
	Link     string     `json:"link,omitempty"`
	Callback ActionFunc `json:"-"`
}

// Notification is a feed entry. Once delivered only Read may change.
type Notification struct {
	ID        ID               `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Timestamp int64            `json:"timestamp"`
	Read      bool             `json:"read"`
	Action    *Action          `json:"action,omitempty"`
}

type notificationFields Notification

// UnmarshalJSON implements json.Unmarshaler. Timestamps stored as text or
// as integral floats decode too.
func (n *Notification) UnmarshalJSON(data []byte) error {
	data, err := coerceNumbers(data, true, "timestamp")
	if err != nil {
		return err
	}
	return json.Unmarshal(data, (*notificationFields)(n))
}

func (n Notification) clone() Notification {
	out := n
	if n.Action != nil {
		a := *n.Action
		out.Action = &a
	}
	return out
}

// Row is one spreadsheet row. Cells arrive as strings or numbers.
type Row []any

// Sheet is a spreadsheet-shaped table; the first row is the header.
type Sheet []Row

// Header returns the header row or nil.
func (s Sheet) Header() Row {
	if len(s) == 0 {
		return nil
	}
	return s[0]
}

// Rows returns the data rows below the header.
func (s Sheet) Rows() []Row {
	if len(s) < 2 {
		return nil
	}
	return s[1:]
}

func (s Sheet) clone() Sheet {
	if s == nil {
		return nil
	}
	out := make(Sheet, len(s))
	for i, r := range s {
		out[i] = append(Row{}, r...)
	}
	return out
}
