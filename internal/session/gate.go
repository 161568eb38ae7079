package session

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/diagnosis/campus-tickets/internal/http/response"
	"github.com/diagnosis/campus-tickets/pkg/logger"
	"github.com/diagnosis/campus-tickets/pkg/metrics"
	"github.com/diagnosis/campus-tickets/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type Verifier interface {
	VerifySession(ctx context.Context, token string) (string, error)
}

type Profiles interface {
	Get(ctx context.Context, userID string) (*domain.Profile, error)
}

type ctxKey struct{}

func WithProfile(ctx context.Context, p *domain.Profile) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// ProfileFrom returns the profile admitted by Require, or nil.
func ProfileFrom(ctx context.Context) *domain.Profile {
	p, _ := ctx.Value(ctxKey{}).(*domain.Profile)
	return p
}

type Options struct {
	CookieName string
	LoginPath  string
	Secure     bool
	TTL        time.Duration
}

// Gate verifies the session cookie and looks the profile up on every
// request. Nothing is cached between requests.
type Gate struct {
	verifier Verifier
	profiles Profiles
	opts     Options
	metrics  metrics.Recorder
}

func NewGate(v Verifier, p Profiles, opts Options, rec metrics.Recorder) *Gate {
	if opts.CookieName == "" {
		opts.CookieName = "session"
	}
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Gate{verifier: v, profiles: p, opts: opts, metrics: rec}
}

// Authenticate returns the profile behind cookie, or nil when the cookie is
// missing, malformed, expired or revoked, or when no profile exists.
func (g *Gate) Authenticate(ctx context.Context, cookie string) *domain.Profile {
	if cookie == "" {
		return nil
	}
	userID, err := g.verifier.VerifySession(ctx, cookie)
	if err != nil {
		logger.DebugContext(ctx, "Session rejected", "error", err)
		return nil
	}
	p, err := g.profiles.Get(ctx, userID)
	if err != nil {
		logger.WarnContext(ctx, "Profile lookup failed", "user_id", userID, "error", err)
		return nil
	}
	return p
}

type Decision struct {
	Allowed bool
	Profile *domain.Profile
	// Reason is KindNotAuthenticated or KindNotAuthorized on deny.
	Reason domain.Kind
}

// Check authenticates r and matches the profile role against roles. With no
// roles any authenticated profile is allowed.
func (g *Gate) Check(r *http.Request, roles ...domain.Role) Decision {
	ctx, span := telemetry.Tracer().Start(r.Context(), "session.Check")
	defer span.End()

	d := g.decide(ctx, g.CookieValue(r), roles)
	span.SetAttributes(attribute.Bool("session.allowed", d.Allowed))
	g.metrics.RecordGate(d.Allowed)
	return d
}

func (g *Gate) decide(ctx context.Context, cookie string, roles []domain.Role) Decision {
	p := g.Authenticate(ctx, cookie)
	if p == nil {
		return Decision{Reason: domain.KindNotAuthenticated}
	}
	if len(roles) == 0 {
		return Decision{Allowed: true, Profile: p}
	}
	for _, role := range roles {
		if p.Role == role {
			return Decision{Allowed: true, Profile: p}
		}
	}
	return Decision{Profile: p, Reason: domain.KindNotAuthorized}
}

// Require runs next only when Check allows the request. Every deny is the
// same redirect to the login page, whatever the reason.
func (g *Gate) Require(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := g.Check(r, roles...)
			if !d.Allowed {
				logger.DebugContext(r.Context(), "Access denied", "reason", d.Reason, "path", r.URL.Path)
				http.Redirect(w, r, g.opts.LoginPath, http.StatusFound)
				return
			}
			ctx := WithProfile(r.Context(), d.Profile)
			ctx = logger.WithUserID(ctx, d.Profile.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireJSON is Require for API routes: a deny is a 401 or 403 JSON error
// instead of a redirect.
func (g *Gate) RequireJSON(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := g.Check(r, roles...)
			if !d.Allowed {
				msg := "authentication required"
				if d.Reason == domain.KindNotAuthorized {
					msg = "insufficient role"
				}
				response.WriteError(w, response.StatusFor(d.Reason), msg, string(d.Reason))
				return
			}
			ctx := WithProfile(r.Context(), d.Profile)
			ctx = logger.WithUserID(ctx, d.Profile.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (g *Gate) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.opts.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(g.opts.TTL.Seconds()),
		HttpOnly: true,
		Secure:   g.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (g *Gate) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// CookieValue returns the raw session cookie of r, or "".
func (g *Gate) CookieValue(r *http.Request) string {
	c, err := r.Cookie(g.opts.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// CallerKey identifies who sent r: the admitted user, else the session
// cookie, else the remote address.
func (g *Gate) CallerKey(r *http.Request) string {
	if p := ProfileFrom(r.Context()); p != nil {
		return "user:" + p.UserID
	}
	if c := g.CookieValue(r); c != "" {
		return "session:" + c
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
