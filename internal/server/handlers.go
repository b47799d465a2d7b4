package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BigJazzz/mosaic/internal/attendance"
	"github.com/BigJazzz/mosaic/internal/backend"
	"github.com/BigJazzz/mosaic/internal/remote"
)

func wireUser(u backend.User) remote.User {
	return remote.User{Username: u.Username, Role: u.Role, Plans: u.Plans}
}

func (s *Server) badBody(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, remote.CodeValidation, "invalid request body: "+err.Error())
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ok())
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req remote.LoginRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badBody(w, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, remote.CodeValidation, "username and password are required")
		return
	}
	u, err := s.svc.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	token, err := s.tokens.Issue(u)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("login", "username", u.Username, "role", u.Role)
	writeJSON(w, http.StatusOK, remote.LoginResponse{Envelope: ok(), Token: token, User: wireUser(u)})
}

func (s *Server) getPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.svc.GetPlans(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user := claimsFrom(r.Context()).User()
	visible := make([]attendance.Plan, 0, len(plans))
	for _, p := range plans {
		if user.CanAccess(p.ID) {
			visible = append(visible, p)
		}
	}
	writeJSON(w, http.StatusOK, remote.PlansResponse{Envelope: ok(), Plans: visible})
}

func (s *Server) getRoster(w http.ResponseWriter, r *http.Request) {
	roster, err := s.svc.GetRoster(r.Context(), chi.URLParam(r, "plan"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, remote.RosterResponse{Envelope: ok(), Roster: remote.EncodeRoster(roster)})
}

func (s *Server) getColumns(w http.ResponseWriter, r *http.Request) {
	cs, found, err := s.svc.TodaysColumns(r.Context(), chi.URLParam(r, "plan"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := remote.ColumnsResponse{Envelope: ok(), Exists: found}
	if found {
		resp.Columns = &cs
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.InitialSnapshot(r.Context(), chi.URLParam(r, "plan"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, remote.SnapshotResponse{Envelope: ok(), Snapshot: snap})
}

func (s *Server) setupMeeting(w http.ResponseWriter, r *http.Request) {
	var req remote.MeetingRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badBody(w, err)
		return
	}
	snap, err := s.svc.SetupAndFetch(r.Context(), chi.URLParam(r, "plan"), req.MeetingType)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, remote.SnapshotResponse{Envelope: ok(), Snapshot: snap})
}

func (s *Server) changeMeetingType(w http.ResponseWriter, r *http.Request) {
	var req remote.MeetingRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badBody(w, err)
		return
	}
	if err := s.svc.ChangeMeetingType(r.Context(), chi.URLParam(r, "plan"), req.MeetingType); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok())
}

func (s *Server) deleteAttendance(w http.ResponseWriter, r *http.Request) {
	plan, lot := chi.URLParam(r, "plan"), chi.URLParam(r, "lot")
	if err := s.svc.DeleteAttendance(r.Context(), plan, lot); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok())
}

// batchSubmit drops submissions for plans the caller cannot access; they
// count as skipped, like an unknown lot.
func (s *Server) batchSubmit(w http.ResponseWriter, r *http.Request) {
	var req remote.BatchRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badBody(w, err)
		return
	}
	user := claimsFrom(r.Context()).User()
	allowed := make([]attendance.Submission, 0, len(req.Submissions))
	for _, sub := range req.Submissions {
		if user.CanAccess(sub.PlanID) {
			allowed = append(allowed, sub)
			continue
		}
		s.logger.Warn("batch dropped submission for inaccessible plan",
			"username", user.Username, "plan", sub.PlanID, "id", sub.ID)
	}
	n, err := s.svc.BatchSubmit(r.Context(), allowed)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, remote.BatchResponse{Envelope: ok(), ProcessedCount: n})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.svc.ListUsers(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]remote.User, len(users))
	for i, u := range users {
		out[i] = wireUser(u)
	}
	writeJSON(w, http.StatusOK, remote.UsersResponse{Envelope: ok(), Users: out})
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req remote.CreateUserRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badBody(w, err)
		return
	}
	if _, err := s.svc.CreateUser(r.Context(), req.Username, req.Password, req.Role, req.Plans); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ok())
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == claimsFrom(r.Context()).Username {
		writeError(w, http.StatusBadRequest, remote.CodeValidation, "cannot delete your own account")
		return
	}
	if err := s.svc.DeleteUser(r.Context(), name); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok())
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req remote.PasswordRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badBody(w, err)
		return
	}
	username := claimsFrom(r.Context()).Username
	if err := s.svc.ChangePassword(r.Context(), username, req.Password); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok())
}
