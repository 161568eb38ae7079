package handlers

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/diagnosis/campus-tickets/pkg/logger"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Event descriptions reach the templates already sanitized.
var templates = template.Must(template.New("pages").Funcs(template.FuncMap{
	"sanitized": func(s string) template.HTML { return template.HTML(s) },
}).ParseFS(templatesFS, "templates/*.html"))

type pageView struct {
	Title   string
	Profile *domain.Profile
	Events  []domain.EventDTO
	Tickets []domain.Ticket
	Error   string
}

func render(w http.ResponseWriter, r *http.Request, status int, name string, view pageView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.ExecuteTemplate(w, name, view); err != nil {
		logger.ErrorContext(r.Context(), "Failed to render page", "page", name, "error", err)
	}
}

func (h *Handlers) index(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, "index.html", pageView{Title: "Send a ticket"})
}

func (h *Handlers) loginPage(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, "login.html", pageView{Title: "Log in"})
}

func dashboardPath(role domain.Role) string {
	if role == domain.RoleStaff {
		return "/staff/dashboard"
	}
	return "/student/dashboard"
}

func (h *Handlers) dashboard(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, dashboardPath(current(r).Role), http.StatusFound)
}

func (h *Handlers) studentDashboard(w http.ResponseWriter, r *http.Request) {
	p := current(r)
	view := pageView{Title: "Student dashboard", Profile: p}

	evs, err := h.Events.List(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to list events", "error", err)
		view.Error = "Events are unavailable right now."
	}
	view.Events = evs

	tickets, err := h.Tickets.ListForUser(r.Context(), p.UserID)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to list tickets", "error", err)
		view.Error = "Tickets are unavailable right now."
	}
	view.Tickets = tickets

	render(w, r, http.StatusOK, "student_dashboard.html", view)
}

func (h *Handlers) staffDashboard(w http.ResponseWriter, r *http.Request) {
	view := pageView{Title: "Staff dashboard", Profile: current(r)}
	evs, err := h.Events.List(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to list events", "error", err)
		view.Error = "Events are unavailable right now."
	}
	view.Events = evs
	render(w, r, http.StatusOK, "staff_dashboard.html", view)
}

func (h *Handlers) profilePage(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, "profile.html", pageView{Title: "Profile", Profile: current(r)})
}
