package portal

import (
	"fmt"
	"strconv"
	"strings"
)

// ShortlistJobHeader is the leading column of the flattened shortlist view.
const ShortlistJobHeader = "Job ID"

// AddJob assigns the job the next id (max existing + 1), appends it and
// returns the stored job.
func (d *Data) AddJob(job Job) Job {
	next := 1
	for _, j := range d.Jobs {
		if j.ID >= next {
			next = j.ID + 1
		}
	}
	job.ID = next
	d.Jobs = append(d.Jobs, job.clone())
	d.refreshFilteredJobs()
	return job
}

// JobByID returns the job with the given id.
func (d *Data) JobByID(id int) (Job, bool) {
	for _, j := range d.Jobs {
		if j.ID == id {
			return j.clone(), true
		}
	}
	return Job{}, false
}

// UpdateJob replaces the job with the same id.
func (d *Data) UpdateJob(job Job) error {
	for i, j := range d.Jobs {
		if j.ID == job.ID {
			d.Jobs[i] = job.clone()
			d.refreshFilteredJobs()
			return nil
		}
	}
	return fmt.Errorf("job %d: %w", job.ID, ErrNotFound)
}

// DeleteJob removes the job and its shortlist.
func (d *Data) DeleteJob(id int) error {
	idx := -1
	for i, j := range d.Jobs {
		if j.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	d.Jobs = append(d.Jobs[:idx], d.Jobs[idx+1:]...)
	d.refreshFilteredJobs()
	if _, ok := d.JobShortlisted[strconv.Itoa(id)]; ok {
		delete(d.JobShortlisted, strconv.Itoa(id))
		d.rebuildShortlistedData()
	}
	return nil
}

// AddStudent appends a student. Id, USN and email must each be unique.
func (d *Data) AddStudent(s Student) error {
	if s.ID == "" || strings.TrimSpace(s.USN) == "" {
		return fmt.Errorf("student requires id and usn: %w", ErrInvalid)
	}
	for _, existing := range d.Students {
		switch {
		case existing.ID == s.ID:
			return fmt.Errorf("student id %s: %w", s.ID, ErrDuplicate)
		case strings.EqualFold(existing.USN, s.USN):
			return fmt.Errorf("student usn %s: %w", s.USN, ErrDuplicate)
		case s.Email != "" && strings.EqualFold(existing.Email, s.Email):
			return fmt.Errorf("student email %s: %w", s.Email, ErrDuplicate)
		}
	}
	d.Students = append(d.Students, s.clone())
	return nil
}

// StudentByUSN returns the student with the given business key.
func (d *Data) StudentByUSN(usn string) (Student, bool) {
	for _, s := range d.Students {
		if s.USN == usn {
			return s.clone(), true
		}
	}
	return Student{}, false
}

// DeleteStudent removes the student with the given id.
func (d *Data) DeleteStudent(id StringID) error {
	for i, s := range d.Students {
		if s.ID == id {
			d.Students = append(d.Students[:i], d.Students[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("student %s: %w", id, ErrNotFound)
}

// AddAdmin appends an admin. Id and username must be unique.
func (d *Data) AddAdmin(a Admin) error {
	if a.ID == "" || strings.TrimSpace(a.Username) == "" {
		return fmt.Errorf("admin requires id and username: %w", ErrInvalid)
	}
	for _, existing := range d.Admins {
		if existing.ID == a.ID {
			return fmt.Errorf("admin id %s: %w", a.ID, ErrDuplicate)
		}
		if existing.Username == a.Username {
			return fmt.Errorf("admin username %s: %w", a.Username, ErrDuplicate)
		}
	}
	d.Admins = append(d.Admins, a.clone())
	return nil
}

// SetShortlist stores the shortlist table of a job and rebuilds the flattened
// view. The first row must be a non-empty header.
func (d *Data) SetShortlist(jobID int, sheet Sheet) error {
	if len(sheet) == 0 || len(sheet[0]) == 0 {
		return fmt.Errorf("shortlist for job %d has no header row: %w", jobID, ErrInvalidShortlist)
	}
	if d.JobShortlisted == nil {
		d.JobShortlisted = map[string]Sheet{}
	}
	d.JobShortlisted[strconv.Itoa(jobID)] = sheet.clone()
	d.rebuildShortlistedData()
	return nil
}

// RemoveShortlist drops the shortlist of a job.
func (d *Data) RemoveShortlist(jobID int) error {
	key := strconv.Itoa(jobID)
	if _, ok := d.JobShortlisted[key]; !ok {
		return fmt.Errorf("shortlist for job %d: %w", jobID, ErrNotFound)
	}
	delete(d.JobShortlisted, key)
	d.rebuildShortlistedData()
	return nil
}

// rebuildShortlistedData flattens every per-job shortlist into one table:
// a "Job ID" column followed by the header of the first sheet, then every
// data row prefixed by its job id, jobs in ascending id order.
func (d *Data) rebuildShortlistedData() {
	keys := shortlistKeys(d.JobShortlisted)
	if len(keys) == 0 {
		d.ShortlistedData = Sheet{}
		return
	}
	header := append(Row{ShortlistJobHeader}, d.JobShortlisted[keys[0]].Header()...)
	out := Sheet{header}
	for _, k := range keys {
		var jobCell any = k
		if n, err := strconv.Atoi(k); err == nil {
			jobCell = n
		}
		for _, r := range d.JobShortlisted[k].Rows() {
			out = append(out, append(Row{jobCell}, r...))
		}
	}
	d.ShortlistedData = out
}

// SetCriteria replaces the global eligibility criteria.
func (d *Data) SetCriteria(c Criteria) error {
	if c.Min10thMarks < 0 || c.Min12thMarks < 0 || c.MinCGPAMarks < 0 {
		return fmt.Errorf("criteria must not be negative: %w", ErrInvalid)
	}
	d.EligibilityCriteria = c
	return nil
}

// EffectiveCriteria returns the job's own requirements when set, otherwise
// the global criteria.
func (d *Data) EffectiveCriteria(job Job) Criteria {
	if job.AcademicRequirements != nil {
		return *job.AcademicRequirements
	}
	return d.EligibilityCriteria
}

// NotificationIndex returns the position of the notification with the given
// id, or -1.
func (d *Data) NotificationIndex(id ID) int {
	for i, n := range d.Notifications {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// UnreadCount returns the number of unread notifications.
func (d *Data) UnreadCount() int {
	count := 0
	for _, n := range d.Notifications {
		if !n.Read {
			count++
		}
	}
	return count
}

// NotificationIDs returns the ids of all notifications in list order.
func (d *Data) NotificationIDs() []ID {
	ids := make([]ID, 0, len(d.Notifications))
	for _, n := range d.Notifications {
		ids = append(ids, n.ID)
	}
	return ids
}
