package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/diagnosis/campus-tickets/internal/identity"
	"github.com/diagnosis/campus-tickets/internal/repo/postgres"
)

type noUsers struct{}

func (noUsers) CreateWithProfile(context.Context, *postgres.User, *domain.Profile) error {
	return errors.New("not used")
}
func (noUsers) FindByEmail(context.Context, string) (*postgres.User, error) { return nil, nil }
func (noUsers) UpdatePasswordHash(context.Context, string, string) error    { return nil }

type memRevocations struct {
	mu  sync.Mutex
	ids map[string]bool
}

func (m *memRevocations) Revoke(_ context.Context, id string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ids == nil {
		m.ids = map[string]bool{}
	}
	m.ids[id] = true
	return nil
}

func (m *memRevocations) IsRevoked(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ids[id], nil
}

type memProfiles struct {
	mu    sync.Mutex
	byID  map[string]*domain.Profile
	calls int
}

func (m *memProfiles) Get(_ context.Context, id string) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	p, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memProfiles) setRole(id string, role domain.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[id].Role = role
}

type fixture struct {
	gate     *Gate
	ids      *identity.Store
	profiles *memProfiles
	revoked  *memRevocations
}

func newFixture() *fixture {
	rev := &memRevocations{}
	ids := identity.NewStore(noUsers{}, rev, "secret", time.Hour)
	profiles := &memProfiles{byID: map[string]*domain.Profile{
		"student-1": {UserID: "student-1", Role: domain.RoleStudent},
		"staff-1":   {UserID: "staff-1", Role: domain.RoleStaff},
	}}
	gate := NewGate(ids, profiles, Options{CookieName: "session", LoginPath: "/login", TTL: time.Hour}, nil)
	return &fixture{gate: gate, ids: ids, profiles: profiles, revoked: rev}
}

func (f *fixture) token(t *testing.T, userID string) string {
	t.Helper()
	s, err := f.ids.CreateSession(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	return s.Token
}

// protected returns a handler that records whether it ran and which profile it saw.
func protected(ran *bool, seen **domain.Profile) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*ran = true
		*seen = ProfileFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(h http.Handler, cookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/staff/dashboard", nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "session", Value: cookie})
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequire_DeniesUniformly(t *testing.T) {
	f := newFixture()

	expiredStore := identity.NewStore(noUsers{}, &memRevocations{}, "secret", -time.Minute)
	expired, err := expiredStore.CreateSession(context.Background(), "staff-1")
	if err != nil {
		t.Fatal(err)
	}

	cases := map[string]string{
		"no cookie":      "",
		"expired cookie": expired.Token,
		"role mismatch":  f.token(t, "student-1"),
		"no profile":     f.token(t, "ghost"),
		"malformed":      "definitely-not-a-token",
	}

	var first *httptest.ResponseRecorder
	for name, cookie := range cases {
		var ran bool
		var seen *domain.Profile
		rec := doRequest(f.gate.Require(domain.RoleStaff)(protected(&ran, &seen)), cookie)

		if ran {
			t.Errorf("%s: protected handler ran", name)
		}
		if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login" {
			t.Errorf("%s: got %d %q, want 302 /login", name, rec.Code, rec.Header().Get("Location"))
		}
		if first == nil {
			first = rec
			continue
		}
		if rec.Body.String() != first.Body.String() {
			t.Errorf("%s: deny body differs from other denials", name)
		}
	}
}

func TestRequire_RevokedSessionIsDenied(t *testing.T) {
	f := newFixture()
	token := f.token(t, "staff-1")

	if err := f.ids.RevokeSession(context.Background(), token); err != nil {
		t.Fatal(err)
	}

	var ran bool
	var seen *domain.Profile
	rec := doRequest(f.gate.Require(domain.RoleStaff)(protected(&ran, &seen)), token)
	if ran || rec.Code != http.StatusFound {
		t.Fatalf("revoked session admitted: ran=%v code=%d", ran, rec.Code)
	}
}

func TestRequire_AllowsMatchingRole(t *testing.T) {
	f := newFixture()

	var ran bool
	var seen *domain.Profile
	rec := doRequest(f.gate.Require(domain.RoleStaff)(protected(&ran, &seen)), f.token(t, "staff-1"))

	if !ran || rec.Code != http.StatusOK {
		t.Fatalf("expected access, got ran=%v code=%d", ran, rec.Code)
	}
	if seen == nil || seen.UserID != "staff-1" {
		t.Fatalf("profile not in context: %+v", seen)
	}
}

func TestRequire_NoRoleAcceptsAnyProfile(t *testing.T) {
	f := newFixture()

	for _, id := range []string{"student-1", "staff-1"} {
		var ran bool
		var seen *domain.Profile
		doRequest(f.gate.Require()(protected(&ran, &seen)), f.token(t, id))
		if !ran {
			t.Errorf("%s: expected access with no role requirement", id)
		}
	}

	var ran bool
	var seen *domain.Profile
	doRequest(f.gate.Require()(protected(&ran, &seen)), "")
	if ran {
		t.Error("anonymous request admitted")
	}
}

func TestRequire_RoleChangeTakesEffectNextRequest(t *testing.T) {
	f := newFixture()
	token := f.token(t, "student-1")
	h := func(ran *bool, seen **domain.Profile) http.Handler {
		return f.gate.Require(domain.RoleStaff)(protected(ran, seen))
	}

	var ran bool
	var seen *domain.Profile
	doRequest(h(&ran, &seen), token)
	if ran {
		t.Fatal("student admitted to staff route")
	}

	f.profiles.setRole("student-1", domain.RoleStaff)

	ran = false
	doRequest(h(&ran, &seen), token)
	if !ran {
		t.Fatal("promoted user still denied with the same session")
	}

	f.profiles.setRole("student-1", domain.RoleStudent)

	ran = false
	doRequest(h(&ran, &seen), token)
	if ran {
		t.Fatal("demoted user still admitted")
	}
	if f.profiles.calls != 3 {
		t.Fatalf("profile looked up %d times, want one per request", f.profiles.calls)
	}
}

func TestAuthenticate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if p := f.gate.Authenticate(ctx, f.token(t, "staff-1")); p == nil || p.Role != domain.RoleStaff {
		t.Fatalf("Authenticate = %+v", p)
	}
	if p := f.gate.Authenticate(ctx, ""); p != nil {
		t.Fatal("empty cookie authenticated")
	}
	if p := f.gate.Authenticate(ctx, f.token(t, "ghost")); p != nil {
		t.Fatal("identity without profile authenticated")
	}
}

func TestCheck_Reasons(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if d := f.gate.Check(req, domain.RoleStaff); d.Allowed || d.Reason != domain.KindNotAuthenticated {
		t.Fatalf("anonymous decision %+v", d)
	}

	req.AddCookie(&http.Cookie{Name: "session", Value: f.token(t, "student-1")})
	if d := f.gate.Check(req, domain.RoleStaff); d.Allowed || d.Reason != domain.KindNotAuthorized {
		t.Fatalf("student decision %+v", d)
	}
}

func TestSetCookie_Attributes(t *testing.T) {
	gate := NewGate(nil, nil, Options{CookieName: "session", Secure: true, TTL: time.Hour}, nil)
	rec := httptest.NewRecorder()
	gate.SetCookie(rec, "tok")

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d", len(cookies))
	}
	c := cookies[0]
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode || c.MaxAge != 3600 || c.Value != "tok" {
		t.Fatalf("unexpected cookie %+v", c)
	}
}

func TestRequireJSON_StatusByReason(t *testing.T) {
	f := newFixture()

	tests := []struct {
		name   string
		cookie string
		want   int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"wrong role", f.token(t, "student-1"), http.StatusForbidden},
		{"staff", f.token(t, "staff-1"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ran bool
			var seen *domain.Profile
			rec := doRequest(f.gate.RequireJSON(domain.RoleStaff)(protected(&ran, &seen)), tt.cookie)
			if rec.Code != tt.want {
				t.Fatalf("status %d, want %d", rec.Code, tt.want)
			}
			if ran != (tt.want == http.StatusOK) {
				t.Fatalf("handler ran = %v", ran)
			}
			if tt.want != http.StatusOK && rec.Header().Get("Content-Type") != "application/json" {
				t.Fatalf("deny content type %q", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestCallerKey(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodPost, "/send_qr", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	if got := f.gate.CallerKey(req); got != "addr:10.0.0.7" {
		t.Fatalf("anonymous key %q", got)
	}

	req.AddCookie(&http.Cookie{Name: "session", Value: "abc"})
	if got := f.gate.CallerKey(req); got != "session:abc" {
		t.Fatalf("cookie key %q", got)
	}

	req = req.WithContext(WithProfile(req.Context(), &domain.Profile{UserID: "u1"}))
	if got := f.gate.CallerKey(req); got != "user:u1" {
		t.Fatalf("admitted key %q", got)
	}
}
