package v1

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dsiportal/placement-sync/internal/api/common"
	"github.com/dsiportal/placement-sync/internal/portal"
)

// Data-model handlers. Every change goes through SyncService.Mutate, so a
// failed write leaves the change applied locally and reports the error.

func (rr *Routes) addJob(w http.ResponseWriter, r *http.Request) {
	var job portal.Job
	if err := common.DecodeJSON(r, &job); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	var stored portal.Job
	err := rr.svc.Sync.Mutate(r.Context(), func(d *portal.Data) error {
		stored = d.AddJob(job)
		return nil
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSONResponse(w, stored, http.StatusCreated)
}

func (rr *Routes) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := common.IntParam(r, "jobID")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	var (
		job   portal.Job
		found bool
	)
	rr.svc.Sync.State().View(func(d *portal.Data) {
		job, found = d.JobByID(id)
	})
	if !found {
		common.WriteError(w, fmt.Errorf("job %d: %w", id, portal.ErrNotFound))
		return
	}
	common.WriteJSONResponse(w, job, http.StatusOK)
}

func (rr *Routes) updateJob(w http.ResponseWriter, r *http.Request) {
	id, err := common.IntParam(r, "jobID")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	var job portal.Job
	if err := common.DecodeJSON(r, &job); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	job.ID = id
	if err := rr.svc.Sync.Mutate(r.Context(), func(d *portal.Data) error {
		return d.UpdateJob(job)
	}); err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSONResponse(w, job, http.StatusOK)
}

func (rr *Routes) deleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := common.IntParam(r, "jobID")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := rr.svc.Sync.Mutate(r.Context(), func(d *portal.Data) error {
		return d.DeleteJob(id)
	}); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rr *Routes) getJobCriteria(w http.ResponseWriter, r *http.Request) {
	id, err := common.IntParam(r, "jobID")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	var (
		resp  CriteriaResponse
		found bool
	)
	rr.svc.Sync.State().View(func(d *portal.Data) {
		var job portal.Job
		if job, found = d.JobByID(id); found {
			resp = CriteriaResponse{Criteria: d.EffectiveCriteria(job), JobSpecific: job.AcademicRequirements != nil}
		}
	})
	if !found {
		common.WriteError(w, fmt.Errorf("job %d: %w", id, portal.ErrNotFound))
		return
	}
	common.WriteJSONResponse(w, resp, http.StatusOK)
}

func (rr *Routes) setShortlist(w http.ResponseWriter, r *http.Request) {
	id, err := common.IntParam(r, "jobID")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	var sheet portal.Sheet
	if err := common.DecodeJSON(r, &sheet); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := rr.svc.Sync.Mutate(r.Context(), func(d *portal.Data) error {
		if _, ok := d.JobByID(id); !ok {
			return fmt.Errorf("job %d: %w", id, portal.ErrNotFound)
		}
		return d.SetShortlist(id, sheet)
	}); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rr *Routes) removeShortlist(w http.ResponseWriter, r *http.Request) {
	id, err := common.IntParam(r, "jobID")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := rr.svc.Sync.Mutate(r.Context(), func(d *portal.Data) error {
		return d.RemoveShortlist(id)
	}); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rr *Routes) listStudents(w http.ResponseWriter, _ *http.Request) {
	var students []portal.Student
	rr.svc.Sync.State().View(func(d *portal.Data) {
		students = make([]portal.Student, 0, len(d.Students))
		for _, s := range d.Students {
			students = append(students, withoutPassword(s))
		}
	})
	common.WriteJSONResponse(w, StudentsResponse{Students: students, Total: len(students)}, http.StatusOK)
}

func (rr *Routes) getStudentByUSN(w http.ResponseWriter, r *http.Request) {
	usn := strings.TrimSpace(chi.URLParam(r, "usn"))
	var (
		student portal.Student
		found   bool
	)
	rr.svc.Sync.State().View(func(d *portal.Data) {
		student, found = d.StudentByUSN(usn)
	})
	if !found {
		common.WriteError(w, fmt.Errorf("student usn %s: %w", usn, portal.ErrNotFound))
		return
	}
	common.WriteJSONResponse(w, withoutPassword(student), http.StatusOK)
}

func (rr *Routes) addStudent(w http.ResponseWriter, r *http.Request) {
	var student portal.Student
	if err := common.DecodeJSON(r, &student); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := rr.svc.Sync.Mutate(r.Context(), func(d *portal.Data) error {
		return d.AddStudent(student)
	}); err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSONResponse(w, withoutPassword(student), http.StatusCreated)
}

func (rr *Routes) deleteStudent(w http.ResponseWriter, r *http.Request) {
	id := portal.StringID(strings.TrimSpace(chi.URLParam(r, "id")))
	if err := rr.svc.Sync.Mutate(r.Context(), func(d *portal.Data) error {
		return d.DeleteStudent(id)
	}); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rr *Routes) addAdmin(w http.ResponseWriter, r *http.Request) {
	var admin portal.Admin
	if err := common.DecodeJSON(r, &admin); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := rr.svc.Sync.Mutate(r.Context(), func(d *portal.Data) error {
		return d.AddAdmin(admin)
	}); err != nil {
		common.WriteError(w, err)
		return
	}
	admin.Password = ""
	common.WriteJSONResponse(w, admin, http.StatusCreated)
}

func (rr *Routes) getCriteria(w http.ResponseWriter, _ *http.Request) {
	var c portal.Criteria
	rr.svc.Sync.State().View(func(d *portal.Data) {
		c = d.EligibilityCriteria
	})
	common.WriteJSONResponse(w, CriteriaResponse{Criteria: c}, http.StatusOK)
}

func (rr *Routes) setCriteria(w http.ResponseWriter, r *http.Request) {
	var c portal.Criteria
	if err := common.DecodeJSON(r, &c); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := rr.svc.Sync.Mutate(r.Context(), func(d *portal.Data) error {
		return d.SetCriteria(c)
	}); err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSONResponse(w, CriteriaResponse{Criteria: c}, http.StatusOK)
}

func withoutPassword(s portal.Student) portal.Student {
	s.Password = ""
	return s
}
