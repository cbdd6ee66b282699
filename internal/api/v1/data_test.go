package v1_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	v1 "github.com/dsiportal/placement-sync/internal/api/v1"
	"github.com/dsiportal/placement-sync/internal/portal"
	psync "github.com/dsiportal/placement-sync/internal/sync"
)

func seededState(t *testing.T) *portal.State {
	t.Helper()
	state := portal.NewState()
	require.NoError(t, state.Update(func(d *portal.Data) error {
		d.EligibilityCriteria = portal.Criteria{Min10thMarks: 60, Min12thMarks: 60, MinCGPAMarks: 6}
		d.AddJob(portal.Job{Company: "Acme", Role: "SDE"})
		d.AddJob(portal.Job{Company: "Globex", Role: "Analyst", AcademicRequirements: &portal.Criteria{MinCGPAMarks: 8}})
		if err := d.SetShortlist(1, portal.Sheet{{"USN", "Name"}, {"1DS21CS001", "Asha"}}); err != nil {
			return err
		}
		return d.AddStudent(portal.Student{ID: "s1", USN: "1DS21CS001", Email: "a@dsi.edu", Password: "secret"})
	}))
	return state
}

// expectMutate applies mutations to state the way the engine does, then
// returns persistErr as the write result.
func (f *fixture) expectMutate(state *portal.State, persistErr error) {
	f.sync.EXPECT().Mutate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, fn func(*portal.Data) error) error {
			if err := state.Update(fn); err != nil {
				return err
			}
			return persistErr
		})
}

func TestDataRoutes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		mutates    bool
		persistErr error
		wantStatus int
		wantBody   string
		check      func(t *testing.T, d *portal.Data)
	}{
		{
			name: "add job", method: http.MethodPost, target: "/jobs",
			body: `{"company":"Initech","role":"QA","ctc":"6 LPA"}`, mutates: true,
			wantStatus: http.StatusCreated, wantBody: `"id":3`,
			check: func(t *testing.T, d *portal.Data) {
				job, ok := d.JobByID(3)
				require.True(t, ok)
				assert.Equal(t, "Initech", job.Company)
				assert.JSONEq(t, `"6 LPA"`, string(job.Extra["ctc"]))
			},
		},
		{
			name: "get job", method: http.MethodGet, target: "/jobs/2",
			wantStatus: http.StatusOK, wantBody: `"company":"Globex"`,
		},
		{
			name: "get job padded id", method: http.MethodGet, target: "/jobs/002",
			wantStatus: http.StatusOK, wantBody: `"company":"Globex"`,
		},
		{
			name: "get missing job", method: http.MethodGet, target: "/jobs/9",
			wantStatus: http.StatusNotFound,
		},
		{
			name: "non-numeric job id", method: http.MethodGet, target: "/jobs/abc",
			wantStatus: http.StatusBadRequest, wantBody: "jobID must be an integer",
		},
		{
			name: "update job keeps path id", method: http.MethodPut, target: "/jobs/1",
			body: `{"id":7,"company":"Acme","role":"Senior SDE"}`, mutates: true,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, d *portal.Data) {
				job, ok := d.JobByID(1)
				require.True(t, ok)
				assert.Equal(t, "Senior SDE", job.Role)
				_, ok = d.JobByID(7)
				assert.False(t, ok)
			},
		},
		{
			name: "update missing job", method: http.MethodPut, target: "/jobs/9",
			body: `{"company":"Nope"}`, mutates: true,
			wantStatus: http.StatusNotFound,
		},
		{
			name: "delete job drops shortlist", method: http.MethodDelete, target: "/jobs/1", mutates: true,
			wantStatus: http.StatusNoContent,
			check: func(t *testing.T, d *portal.Data) {
				assert.Len(t, d.Jobs, 1)
				assert.Empty(t, d.JobShortlisted)
			},
		},
		{
			name: "global criteria for job", method: http.MethodGet, target: "/jobs/1/criteria",
			wantStatus: http.StatusOK, wantBody: `"minCGPAMarks":6`,
		},
		{
			name: "job specific criteria", method: http.MethodGet, target: "/jobs/2/criteria",
			wantStatus: http.StatusOK, wantBody: `"jobSpecific":true`,
		},
		{
			name: "set shortlist", method: http.MethodPut, target: "/jobs/2/shortlist",
			body: `[["USN","Name"],["1DS21CS002","Ravi"]]`, mutates: true,
			wantStatus: http.StatusNoContent,
			check: func(t *testing.T, d *portal.Data) {
				assert.Len(t, d.JobShortlisted, 2)
				assert.Len(t, d.ShortlistedData, 3)
			},
		},
		{
			name: "shortlist without header", method: http.MethodPut, target: "/jobs/2/shortlist",
			body: `[]`, mutates: true,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "shortlist for missing job", method: http.MethodPut, target: "/jobs/9/shortlist",
			body: `[["USN"]]`, mutates: true,
			wantStatus: http.StatusNotFound,
		},
		{
			name: "remove shortlist", method: http.MethodDelete, target: "/jobs/1/shortlist", mutates: true,
			wantStatus: http.StatusNoContent,
			check: func(t *testing.T, d *portal.Data) {
				assert.Empty(t, d.JobShortlisted)
			},
		},
		{
			name: "student by usn hides password", method: http.MethodGet, target: "/students/usn/1DS21CS001",
			wantStatus: http.StatusOK, wantBody: `"usn":"1DS21CS001"`,
		},
		{
			name: "missing student", method: http.MethodGet, target: "/students/usn/1DS21CS999",
			wantStatus: http.StatusNotFound,
		},
		{
			name: "add student", method: http.MethodPost, target: "/students",
			body: `{"id":"s2","usn":"1DS21CS002","email":"b@dsi.edu","password":"pw","cgpa":8.2}`, mutates: true,
			wantStatus: http.StatusCreated,
			check: func(t *testing.T, d *portal.Data) {
				s, ok := d.StudentByUSN("1DS21CS002")
				require.True(t, ok)
				assert.Equal(t, "pw", s.Password)
				assert.Equal(t, "8.2", s.Extra.Text("cgpa"))
			},
		},
		{
			name: "duplicate student", method: http.MethodPost, target: "/students",
			body: `{"id":"s9","usn":"1DS21CS001","email":"z@dsi.edu"}`, mutates: true,
			wantStatus: http.StatusConflict,
		},
		{
			name: "delete student", method: http.MethodDelete, target: "/students/s1", mutates: true,
			wantStatus: http.StatusNoContent,
			check: func(t *testing.T, d *portal.Data) {
				assert.Empty(t, d.Students)
			},
		},
		{
			name: "add admin", method: http.MethodPost, target: "/admins",
			body: `{"id":"a1","username":"tpo","password":"pw"}`, mutates: true,
			wantStatus: http.StatusCreated, wantBody: `"username":"tpo"`,
			check: func(t *testing.T, d *portal.Data) {
				require.Len(t, d.Admins, 1)
				assert.Equal(t, "pw", d.Admins[0].Password)
			},
		},
		{
			name: "get criteria", method: http.MethodGet, target: "/criteria",
			wantStatus: http.StatusOK, wantBody: `"min10thMarks":60`,
		},
		{
			name: "set criteria", method: http.MethodPut, target: "/criteria",
			body: `{"min10thMarks":"70","min12thMarks":65,"minCGPAMarks":7}`, mutates: true,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, d *portal.Data) {
				assert.Equal(t, 70.0, d.EligibilityCriteria.Min10thMarks)
			},
		},
		{
			name: "negative criteria", method: http.MethodPut, target: "/criteria",
			body: `{"min10thMarks":-1}`, mutates: true,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "write failure keeps local change", method: http.MethodDelete, target: "/jobs/2", mutates: true,
			persistErr: &psync.Error{Kind: psync.KindUnavailable, Message: "failed to save data", Err: errors.New("offline")},
			wantStatus: http.StatusServiceUnavailable,
			check: func(t *testing.T, d *portal.Data) {
				_, ok := d.JobByID(2)
				assert.False(t, ok)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			state := seededState(t)
			if tt.mutates {
				f.expectMutate(state, tt.persistErr)
			} else {
				f.sync.EXPECT().State().Return(state)
			}

			rr := f.do(tt.method, tt.target, tt.body)
			assert.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			if tt.wantBody != "" {
				assert.Contains(t, rr.Body.String(), tt.wantBody)
			}
			assert.NotContains(t, rr.Body.String(), "secret")
			if tt.check != nil {
				state.View(func(d *portal.Data) { tt.check(t, d) })
			}
		})
	}
}

func TestListStudentsHidesPasswords(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	state := seededState(t)
	f.sync.EXPECT().State().Return(state)

	rr := f.do(http.MethodGet, "/students", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp v1.StudentsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	assert.Empty(t, resp.Students[0].Password)
	state.View(func(d *portal.Data) {
		assert.Equal(t, "secret", d.Students[0].Password)
	})
}
