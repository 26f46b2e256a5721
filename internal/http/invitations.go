package httpx

import "net/http"

func (r *Router) handleSendInvitation(w http.ResponseWriter, req *http.Request) {
	actor, ok := r.actor(w, req)
	if !ok {
		return
	}
	var payload struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, req, &payload) {
		return
	}
	detail, err := r.invitations.Send(req.Context(), actor.ID, req.PathValue("teamID"), payload.Email)
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

func (r *Router) handleRevokeInvitation(w http.ResponseWriter, req *http.Request) {
	actor, ok := r.actor(w, req)
	if !ok {
		return
	}
	if err := r.invitations.Revoke(req.Context(), actor.ID, req.PathValue("teamID"), req.PathValue("invitationID")); err != nil {
		r.writeAppError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleListInvitations(w http.ResponseWriter, req *http.Request) {
	actor, ok := r.actor(w, req)
	if !ok {
		return
	}
	invitations, err := r.invitations.ListForUser(req.Context(), actor)
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, invitations)
}

func (r *Router) handleAcceptInvitation(w http.ResponseWriter, req *http.Request) {
	actor, ok := r.actor(w, req)
	if !ok {
		return
	}
	teams, err := r.invitations.Accept(req.Context(), actor, req.PathValue("invitationID"))
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

func (r *Router) handleDeclineInvitation(w http.ResponseWriter, req *http.Request) {
	actor, ok := r.actor(w, req)
	if !ok {
		return
	}
	if err := r.invitations.RevokeOwn(req.Context(), actor, req.PathValue("invitationID")); err != nil {
		r.writeAppError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
