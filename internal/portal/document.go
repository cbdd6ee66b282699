package portal

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strconv"
)

// Document is the persisted shape of the portal data, stored as a single JSON
// object at one path in the realtime backend.
type Document struct {
	Jobs                []Job            `json:"jobs"`
	ShortlistedData     Sheet            `json:"shortlistedData"`
	JobShortlisted      map[string]Sheet `json:"jobShortlisted"`
	Notifications       []Notification   `json:"notifications"`
	Admins              []Admin          `json:"admins"`
	Students            []Student        `json:"students"`
	EligibilityCriteria *Criteria        `json:"eligibilityCriteria"`
}

// DecodeDocument parses a document and applies Normalize.
func DecodeDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to decode document: %w", err)
	}
	doc.Normalize()
	return doc, nil
}

// Encode serializes the document.
func (d Document) Encode() ([]byte, error) {
	d.Normalize()
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return data, nil
}

// Normalize replaces missing fields with their empty value and the criteria
// with the default.
func (d *Document) Normalize() {
	if d.Jobs == nil {
		d.Jobs = []Job{}
	}
	if d.ShortlistedData == nil {
		d.ShortlistedData = Sheet{}
	}
	if d.JobShortlisted == nil {
		d.JobShortlisted = map[string]Sheet{}
	}
	if d.Notifications == nil {
		d.Notifications = []Notification{}
	}
	if d.Admins == nil {
		d.Admins = []Admin{}
	}
	if d.Students == nil {
		d.Students = []Student{}
	}
	if d.EligibilityCriteria == nil {
		c := DefaultCriteria()
		d.EligibilityCriteria = &c
	}
}

// IsEmpty reports whether the document carries no data at all.
func (d Document) IsEmpty() bool {
	return len(d.Jobs) == 0 && len(d.ShortlistedData) == 0 && len(d.JobShortlisted) == 0 &&
		len(d.Notifications) == 0 && len(d.Admins) == 0 && len(d.Students) == 0
}

// Data is the in-memory portal state. It is only accessed through State.
type Data struct {
	Jobs                []Job
	FilteredJobs        []Job
	Students            []Student
	Admins              []Admin
	Notifications       []Notification
	JobShortlisted      map[string]Sheet
	ShortlistedData     Sheet
	EligibilityCriteria Criteria

	// CurrentStudent and CurrentAdmin are the session principal. They are
	// never written to the document.
	CurrentStudent *Student
	CurrentAdmin   *Admin
}

// Reset sets every collection to its empty value and the criteria to the
// default. The session principal is left alone.
func (d *Data) Reset() {
	d.Jobs = []Job{}
	d.FilteredJobs = []Job{}
	d.Students = []Student{}
	d.Admins = []Admin{}
	d.Notifications = []Notification{}
	d.JobShortlisted = map[string]Sheet{}
	d.ShortlistedData = Sheet{}
	d.EligibilityCriteria = DefaultCriteria()
}

// Document builds the persisted form of d. Notifications lacking both an id
// and a title are dropped and action callbacks are stripped.
func (d *Data) Document() Document {
	doc := Document{
		Jobs:            make([]Job, 0, len(d.Jobs)),
		ShortlistedData: d.ShortlistedData.clone(),
		JobShortlisted:  make(map[string]Sheet, len(d.JobShortlisted)),
		Notifications:   make([]Notification, 0, len(d.Notifications)),
		Admins:          make([]Admin, 0, len(d.Admins)),
		Students:        make([]Student, 0, len(d.Students)),
	}
	for _, j := range d.Jobs {
		doc.Jobs = append(doc.Jobs, j.clone())
	}
	for k, s := range d.JobShortlisted {
		doc.JobShortlisted[k] = s.clone()
	}
	for _, n := range d.Notifications {
		if n.ID.IsZero() && n.Title == "" {
			continue
		}
		n = n.clone()
		if n.Action != nil {
			n.Action.Callback = nil
		}
		doc.Notifications = append(doc.Notifications, n)
	}
	for _, a := range d.Admins {
		doc.Admins = append(doc.Admins, a.clone())
	}
	for _, s := range d.Students {
		doc.Students = append(doc.Students, s.clone())
	}
	c := d.EligibilityCriteria
	doc.EligibilityCriteria = &c
	doc.Normalize()
	return doc
}

// ReplaceFrom replaces every collection with the document's content. Nothing
// is merged. FilteredJobs is rebuilt as a copy of Jobs.
func (d *Data) ReplaceFrom(doc Document) {
	doc.Normalize()
	d.Jobs = make([]Job, 0, len(doc.Jobs))
	for _, j := range doc.Jobs {
		d.Jobs = append(d.Jobs, j.clone())
	}
	d.Students = make([]Student, 0, len(doc.Students))
	for _, s := range doc.Students {
		d.Students = append(d.Students, s.clone())
	}
	d.Admins = make([]Admin, 0, len(doc.Admins))
	for _, a := range doc.Admins {
		d.Admins = append(d.Admins, a.clone())
	}
	d.Notifications = make([]Notification, 0, len(doc.Notifications))
	for _, n := range doc.Notifications {
		d.Notifications = append(d.Notifications, n.clone())
	}
	d.JobShortlisted = make(map[string]Sheet, len(doc.JobShortlisted))
	for k, s := range doc.JobShortlisted {
		d.JobShortlisted[k] = s.clone()
	}
	d.ShortlistedData = doc.ShortlistedData.clone()
	if d.ShortlistedData == nil {
		d.ShortlistedData = Sheet{}
	}
	d.EligibilityCriteria = *doc.EligibilityCriteria
	d.refreshFilteredJobs()
}

func (d *Data) refreshFilteredJobs() {
	d.FilteredJobs = make([]Job, 0, len(d.Jobs))
	for _, j := range d.Jobs {
		d.FilteredJobs = append(d.FilteredJobs, j.clone())
	}
}

// clone returns a deep copy of d. Action callbacks are kept.
func (d *Data) clone() Data {
	out := Data{
		Jobs:                make([]Job, 0, len(d.Jobs)),
		FilteredJobs:        make([]Job, 0, len(d.FilteredJobs)),
		Students:            make([]Student, 0, len(d.Students)),
		Admins:              make([]Admin, 0, len(d.Admins)),
		Notifications:       make([]Notification, 0, len(d.Notifications)),
		JobShortlisted:      make(map[string]Sheet, len(d.JobShortlisted)),
		ShortlistedData:     d.ShortlistedData.clone(),
		EligibilityCriteria: d.EligibilityCriteria,
	}
	for _, j := range d.Jobs {
		out.Jobs = append(out.Jobs, j.clone())
	}
	for _, j := range d.FilteredJobs {
		out.FilteredJobs = append(out.FilteredJobs, j.clone())
	}
	for _, s := range d.Students {
		out.Students = append(out.Students, s.clone())
	}
	for _, a := range d.Admins {
		out.Admins = append(out.Admins, a.clone())
	}
	for _, n := range d.Notifications {
		out.Notifications = append(out.Notifications, n.clone())
	}
	for k, s := range d.JobShortlisted {
		out.JobShortlisted[k] = s.clone()
	}
	if d.CurrentStudent != nil {
		s := d.CurrentStudent.clone()
		out.CurrentStudent = &s
	}
	if d.CurrentAdmin != nil {
		a := d.CurrentAdmin.clone()
		out.CurrentAdmin = &a
	}
	return out
}

// shortlistKeys returns the jobShortlisted keys with numeric job ids first in
// ascending order, then any other keys sorted lexically.
func shortlistKeys(m map[string]Sheet) []string {
	keys := slices.Collect(maps.Keys(m))
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}
