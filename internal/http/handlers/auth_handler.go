package handlers

import (
	"net/http"

	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/diagnosis/campus-tickets/internal/http/response"
	"github.com/diagnosis/campus-tickets/pkg/logger"
	"github.com/go-chi/chi/v5"
)

func (h *Handlers) signup(w http.ResponseWriter, r *http.Request) {
	var in domain.SignupRequest
	if err := decodeJSON(r, &in); err != nil {
		fail(w, r, err)
		return
	}

	p, err := h.Accounts.Signup(r.Context(), &in)
	if err != nil {
		fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, p)
}

// login accepts the JSON API body or the login page's form post. Form posts
// are redirected; JSON callers get the profile and the dashboard path.
func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var in domain.LoginRequest
	form := !isJSON(r)
	if form {
		if err := r.ParseForm(); err != nil {
			response.BadRequest(w, "invalid form")
			return
		}
		in.Email = r.PostFormValue("email")
		in.Password = r.PostFormValue("password")
	} else if err := decodeJSON(r, &in); err != nil {
		fail(w, r, err)
		return
	}

	sess, p, err := h.Accounts.Login(r.Context(), &in)
	if err != nil {
		if form {
			render(w, r, response.StatusFor(domain.KindOf(err)), "login.html", pageView{
				Title: "Log in",
				Error: domain.MessageOf(err),
			})
			return
		}
		fail(w, r, err)
		return
	}

	h.Gate.SetCookie(w, sess.Token)
	logger.InfoContext(r.Context(), "User logged in", "user_id", p.UserID, "role", p.Role)

	if form {
		http.Redirect(w, r, dashboardPath(p.Role), http.StatusSeeOther)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"user":     p,
		"redirect": dashboardPath(p.Role),
	})
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Accounts.Logout(r.Context(), h.Gate.CookieValue(r)); err != nil {
		logger.WarnContext(r.Context(), "Failed to revoke session", "error", err)
	}
	h.Gate.ClearCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handlers) getProfile(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, current(r))
}

func (h *Handlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	var patch domain.ProfilePatch
	if err := decodeJSON(r, &patch); err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.Accounts.UpdateProfile(r.Context(), current(r).UserID, &patch)
	if err != nil {
		fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, p)
}

func (h *Handlers) setRole(w http.ResponseWriter, r *http.Request) {
	var in domain.RoleRequest
	if err := decodeJSON(r, &in); err != nil {
		fail(w, r, err)
		return
	}
	userID := chi.URLParam(r, "id")
	if userID == current(r).UserID {
		response.WriteError(w, http.StatusBadRequest, "cannot change your own role", string(domain.KindValidation))
		return
	}

	p, err := h.Accounts.SetRole(r.Context(), userID, in.Role)
	if err != nil {
		fail(w, r, err)
		return
	}
	logger.InfoContext(r.Context(), "Role changed", "target_user_id", p.UserID, "role", p.Role)
	response.JSON(w, http.StatusOK, p)
}
