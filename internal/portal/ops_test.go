package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newData() *Data {
	d := &Data{}
	d.Reset()
	return d
}

func TestData_AddJobAssignsNextID(t *testing.T) {
	t.Parallel()

	d := newData()
	first := d.AddJob(Job{Company: "A"})
	second := d.AddJob(Job{Company: "B"})
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, 2, second.ID)

	require.NoError(t, d.DeleteJob(1))
	third := d.AddJob(Job{Company: "C"})
	assert.Equal(t, 3, third.ID)

	d.Jobs = append(d.Jobs, Job{ID: 10})
	assert.Equal(t, 11, d.AddJob(Job{}).ID)
}

func TestData_UpdateAndDeleteJob(t *testing.T) {
	t.Parallel()

	d := newData()
	job := d.AddJob(Job{Company: "A"})

	job.Status = "closed"
	require.NoError(t, d.UpdateJob(job))
	got, ok := d.JobByID(job.ID)
	require.True(t, ok)
	assert.Equal(t, "closed", got.Status)
	assert.Equal(t, "closed", d.FilteredJobs[0].Status)

	assert.ErrorIs(t, d.UpdateJob(Job{ID: 99}), ErrNotFound)
	assert.ErrorIs(t, d.DeleteJob(99), ErrNotFound)
}

func TestData_AddStudentUniqueness(t *testing.T) {
	t.Parallel()

	d := newData()
	require.NoError(t, d.AddStudent(Student{ID: "1", USN: "1DS21CS001", Email: "a@example.com"}))

	tests := []struct {
		name    string
		student Student
		wantErr error
	}{
		{name: "duplicate id", student: Student{ID: "1", USN: "X"}, wantErr: ErrDuplicate},
		{name: "duplicate usn", student: Student{ID: "2", USN: "1ds21cs001"}, wantErr: ErrDuplicate},
		{name: "duplicate email", student: Student{ID: "3", USN: "Y", Email: "A@example.com"}, wantErr: ErrDuplicate},
		{name: "missing usn", student: Student{ID: "4"}, wantErr: ErrInvalid},
		{name: "missing id", student: Student{USN: "Z"}, wantErr: ErrInvalid},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, d.AddStudent(tt.student), tt.wantErr, tt.name)
	}

	require.NoError(t, d.AddStudent(Student{ID: "5", USN: "1DS21CS002"}))
	assert.Len(t, d.Students, 2)

	s, ok := d.StudentByUSN("1DS21CS002")
	require.True(t, ok)
	assert.Equal(t, StringID("5"), s.ID)

	require.NoError(t, d.DeleteStudent("5"))
	assert.ErrorIs(t, d.DeleteStudent("5"), ErrNotFound)
}

func TestData_AddAdminUniqueness(t *testing.T) {
	t.Parallel()

	d := newData()
	require.NoError(t, d.AddAdmin(Admin{ID: "a1", Username: "tpo"}))
	assert.ErrorIs(t, d.AddAdmin(Admin{ID: "a1", Username: "other"}), ErrDuplicate)
	assert.ErrorIs(t, d.AddAdmin(Admin{ID: "a2", Username: "tpo"}), ErrDuplicate)
	assert.ErrorIs(t, d.AddAdmin(Admin{ID: "a3"}), ErrInvalid)
}

func TestData_ShortlistFlattening(t *testing.T) {
	t.Parallel()

	d := newData()
	require.NoError(t, d.SetShortlist(10, Sheet{{"USN", "Name"}, {"U3", "Chen"}}))
	require.NoError(t, d.SetShortlist(2, Sheet{{"USN", "Name"}, {"U1", "Asha"}, {"U2", "Bo"}}))

	want := Sheet{
		{ShortlistJobHeader, "USN", "Name"},
		{2, "U1", "Asha"},
		{2, "U2", "Bo"},
		{10, "U3", "Chen"},
	}
	assert.Equal(t, want, d.ShortlistedData)

	require.NoError(t, d.RemoveShortlist(2))
	assert.Equal(t, Sheet{{ShortlistJobHeader, "USN", "Name"}, {10, "U3", "Chen"}}, d.ShortlistedData)

	assert.ErrorIs(t, d.RemoveShortlist(2), ErrNotFound)
	assert.ErrorIs(t, d.SetShortlist(3, Sheet{}), ErrInvalidShortlist)
	assert.ErrorIs(t, d.SetShortlist(3, Sheet{{}}), ErrInvalidShortlist)

	require.NoError(t, d.RemoveShortlist(10))
	assert.Empty(t, d.ShortlistedData)
}

func TestData_DeleteJobDropsShortlist(t *testing.T) {
	t.Parallel()

	d := newData()
	job := d.AddJob(Job{Company: "A"})
	require.NoError(t, d.SetShortlist(job.ID, Sheet{{"USN"}, {"U1"}}))

	require.NoError(t, d.DeleteJob(job.ID))
	assert.Empty(t, d.JobShortlisted)
	assert.Empty(t, d.ShortlistedData)
}

func TestData_EffectiveCriteria(t *testing.T) {
	t.Parallel()

	d := newData()
	assert.Equal(t, DefaultCriteria(), d.EffectiveCriteria(Job{}))

	override := Criteria{Min10thMarks: 80, Min12thMarks: 75, MinCGPAMarks: 8}
	assert.Equal(t, override, d.EffectiveCriteria(Job{AcademicRequirements: &override}))

	require.NoError(t, d.SetCriteria(Criteria{Min10thMarks: 50, Min12thMarks: 50, MinCGPAMarks: 5}))
	assert.Equal(t, 5.0, d.EffectiveCriteria(Job{}).MinCGPAMarks)
	assert.ErrorIs(t, d.SetCriteria(Criteria{Min10thMarks: -1}), ErrInvalid)
}

func TestData_NotificationHelpers(t *testing.T) {
	t.Parallel()

	d := newData()
	d.Notifications = []Notification{{ID: "3"}, {ID: "2", Read: true}, {ID: "1"}}

	assert.Equal(t, 1, d.NotificationIndex("2"))
	assert.Equal(t, -1, d.NotificationIndex("9"))
	assert.Equal(t, 2, d.UnreadCount())
	assert.Equal(t, []ID{"3", "2", "1"}, d.NotificationIDs())
}
