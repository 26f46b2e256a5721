package httpx

import (
	"net/http"

	"github.com/splax/teamhub/internal/role"
)

type nameRequest struct {
	Name string `json:"name"`
}

func (r *Router) handleRoles(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, role.All())
}

func (r *Router) handleListTeams(w http.ResponseWriter, req *http.Request) {
	actor, ok := r.actor(w, req)
	if !ok {
		return
	}
	teams, err := r.teams.List(req.Context(), actor.ID)
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

func (r *Router) handleCreateTeam(w http.ResponseWriter, req *http.Request) {
	actor, ok := r.actor(w, req)
	if !ok {
		return
	}
	var payload nameRequest
	if !decodeJSON(w, req, &payload) {
		return
	}
	teams, err := r.teams.Create(req.Context(), actor, payload.Name)
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, teams)
}

func (r *Router) handleGetTeam(w http.ResponseWriter, req *http.Request) {
	actor, ok := r.actor(w, req)
	if !ok {
		return
	}
	detail, err := r.teams.Get(req.Context(), actor.ID, req.PathValue("teamID"))
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (r *Router) handleRenameTeam(w http.ResponseWriter, req *http.Request) {
	actor, ok := r.actor(w, req)
	if !ok {
		return
	}
	var payload nameRequest
	if !decodeJSON(w, req, &payload) {
		return
	}
	updated, err := r.teams.Rename(req.Context(), actor.ID, req.PathValue("teamID"), payload.Name)
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (r *Router) handleDeleteTeam(w http.ResponseWriter, req *http.Request) {
	actor, ok := r.actor(w, req)
	if !ok {
		return
	}
	teams, err := r.teams.Delete(req.Context(), actor.ID, req.PathValue("teamID"))
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

func (r *Router) handleSwitchTeam(w http.ResponseWriter, req *http.Request) {
	actor, ok := r.actor(w, req)
	if !ok {
		return
	}
	if err := r.members.SwitchCurrentTeam(req.Context(), actor.ID, req.PathValue("teamID")); err != nil {
		r.writeAppError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleUpdateMemberRole(w http.ResponseWriter, req *http.Request) {
	actor, ok := r.actor(w, req)
	if !ok {
		return
	}
	var payload struct {
		Role string `json:"role"`
	}
	if !decodeJSON(w, req, &payload) {
		return
	}
	detail, err := r.members.UpdateRole(req.Context(), actor.ID, req.PathValue("teamID"), req.PathValue("userID"), payload.Role)
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (r *Router) handleRemoveMember(w http.ResponseWriter, req *http.Request) {
	actor, ok := r.actor(w, req)
	if !ok {
		return
	}
	detail, err := r.members.Remove(req.Context(), actor.ID, req.PathValue("teamID"), req.PathValue("userID"))
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (r *Router) handleLeaveTeam(w http.ResponseWriter, req *http.Request) {
	actor, ok := r.actor(w, req)
	if !ok {
		return
	}
	teams, err := r.members.Leave(req.Context(), actor.ID, req.PathValue("teamID"))
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}
