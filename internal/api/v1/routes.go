package v1

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dsiportal/placement-sync/internal/api/common"
	"github.com/dsiportal/placement-sync/internal/notify"
	"github.com/dsiportal/placement-sync/internal/portal"
	"github.com/dsiportal/placement-sync/internal/session"
	"github.com/dsiportal/placement-sync/internal/status"
)

// Routes holds the v1 handlers.
type Routes struct {
	svc Services
}

// Router creates the v1 router.
func Router(svc Services) http.Handler {
	routes := &Routes{svc: svc}
	r := chi.NewRouter()

	r.Get("/state", routes.getState)

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", routes.listJobs)
		r.Post("/", routes.addJob)
		r.Route("/{jobID}", func(r chi.Router) {
			r.Get("/", routes.getJob)
			r.Put("/", routes.updateJob)
			r.Delete("/", routes.deleteJob)
			r.Get("/criteria", routes.getJobCriteria)
			r.Put("/shortlist", routes.setShortlist)
			r.Delete("/shortlist", routes.removeShortlist)
		})
	})

	r.Route("/students", func(r chi.Router) {
		r.Get("/", routes.listStudents)
		r.Post("/", routes.addStudent)
		r.Get("/usn/{usn}", routes.getStudentByUSN)
		r.Delete("/{id}", routes.deleteStudent)
	})
	r.Post("/admins", routes.addAdmin)

	r.Get("/criteria", routes.getCriteria)
	r.Put("/criteria", routes.setCriteria)

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", routes.listNotifications)
		r.Post("/", routes.addNotification)
		r.Post("/read-all", routes.markAllRead)
		r.Post("/{id}/read", routes.markRead)
		r.Delete("/{id}", routes.deleteNotification)
	})

	r.Route("/session", func(r chi.Router) {
		r.Get("/", routes.getSession)
		r.Post("/login", routes.login)
		r.Post("/logout", routes.logout)
	})

	r.Get("/sync/status", routes.getSyncStatus)
	r.Post("/sync/retry", routes.retrySync)

	if svc.Push != nil {
		r.Get("/push", svc.Push.ServeHTTP)
	}
	return r
}

// HealthHandler answers the liveness probe.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, HealthResponse{Status: "healthy"}, http.StatusOK)
}

// ReadinessHandler answers 200 only while the sync engine is ready.
func ReadinessHandler(sync SyncService) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		phase := status.SyncPhaseUninitialized
		if st := sync.Status(); st != nil {
			phase = st.Phase
		}
		if phase != status.SyncPhaseReady {
			common.WriteErrorResponse(w, "sync engine not ready: "+string(phase), http.StatusServiceUnavailable)
			return
		}
		common.WriteJSONResponse(w, HealthResponse{Status: "ready"}, http.StatusOK)
	}
}

func (rr *Routes) getState(w http.ResponseWriter, _ *http.Request) {
	resp := StateResponse{}
	if st := rr.svc.Sync.Status(); st != nil {
		resp.Phase = st.Phase
		resp.DocumentPath = st.DocumentPath
	}
	if rr.svc.Connection != nil {
		resp.Connection = rr.svc.Connection.Status()
	}
	rr.svc.Sync.State().View(func(d *portal.Data) {
		resp.Counts = Counts{
			Jobs:          len(d.Jobs),
			Students:      len(d.Students),
			Admins:        len(d.Admins),
			Notifications: len(d.Notifications),
			Unread:        d.UnreadCount(),
			Shortlists:    len(d.JobShortlisted),
		}
	})
	common.WriteJSONResponse(w, resp, http.StatusOK)
}

func (rr *Routes) listJobs(w http.ResponseWriter, _ *http.Request) {
	var jobs []portal.Job
	rr.svc.Sync.State().View(func(d *portal.Data) {
		jobs = append([]portal.Job{}, d.FilteredJobs...)
	})
	common.WriteJSONResponse(w, JobsResponse{Jobs: jobs, Total: len(jobs)}, http.StatusOK)
}

func (rr *Routes) listNotifications(w http.ResponseWriter, _ *http.Request) {
	list := rr.svc.Notifications.List()
	if list == nil {
		list = []portal.Notification{}
	}
	common.WriteJSONResponse(w, NotificationsResponse{
		Notifications: list,
		Unread:        rr.svc.Notifications.Unread(),
	}, http.StatusOK)
}

func (rr *Routes) addNotification(w http.ResponseWriter, r *http.Request) {
	var draft notify.Draft
	if err := common.DecodeJSON(r, &draft); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	n, added, err := rr.svc.Notifications.Add(r.Context(), draft)
	if err != nil && !added {
		common.WriteError(w, err)
		return
	}
	if !added {
		common.WriteJSONResponse(w, AddNotificationResponse{Notification: n}, http.StatusOK)
		return
	}

	resp := AddNotificationResponse{Notification: n, Added: true}
	if err != nil {
		// the notification is live locally; only the write failed
		slog.WarnContext(r.Context(), "Notification added but not persisted", "notification_id", n.ID.String(), "error", err)
		resp.PersistError = err.Error()
	}
	common.WriteJSONResponse(w, resp, http.StatusCreated)
}

func (rr *Routes) markRead(w http.ResponseWriter, r *http.Request) {
	id, err := common.IDParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := rr.svc.Notifications.MarkRead(r.Context(), id); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rr *Routes) markAllRead(w http.ResponseWriter, r *http.Request) {
	if err := rr.svc.Notifications.MarkAllRead(r.Context()); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rr *Routes) deleteNotification(w http.ResponseWriter, r *http.Request) {
	id, err := common.IDParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := rr.svc.Notifications.Delete(r.Context(), id); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rr *Routes) getSession(w http.ResponseWriter, _ *http.Request) {
	p, ok := rr.svc.Sessions.Current()
	if !ok {
		common.WriteJSONResponse(w, SessionResponse{}, http.StatusOK)
		return
	}
	common.WriteJSONResponse(w, newSessionResponse(p), http.StatusOK)
}

func (rr *Routes) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	kind, err := session.ParseKind(req.Kind)
	if err != nil {
		common.WriteError(w, err)
		return
	}

	p, err := rr.svc.Sessions.Login(r.Context(), kind, session.Credentials{Identifier: req.Identifier, Password: req.Password})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSONResponse(w, newSessionResponse(p), http.StatusOK)
}

func (rr *Routes) logout(w http.ResponseWriter, r *http.Request) {
	if err := rr.svc.Sessions.Logout(r.Context()); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rr *Routes) getSyncStatus(w http.ResponseWriter, _ *http.Request) {
	st := rr.svc.Sync.Status()
	if st == nil {
		st = &status.SyncStatus{Phase: status.SyncPhaseUninitialized}
	}
	common.WriteJSONResponse(w, st, http.StatusOK)
}

func (rr *Routes) retrySync(w http.ResponseWriter, r *http.Request) {
	if err := rr.svc.Sync.Retry(r.Context()); err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSONResponse(w, rr.svc.Sync.Status(), http.StatusAccepted)
}
