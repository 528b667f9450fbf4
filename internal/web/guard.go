package web

import (
	"time"

	"radar/internal/observability"
	"radar/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// sessionLocal is the Fiber locals key holding the resolved *session.Session.
const sessionLocal = "session"

// SessionMiddleware ensures every request carries a session cookie and a
// settled (or explicitly Unknown) session in locals before any view runs.
// Resolution happens here, once per request, so guards and views never see
// an in-between state.
func (s *Server) SessionMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sid := c.Cookies(s.config.CookieName)
		if sid == "" {
			sid = uuid.NewString()
			c.Cookie(&fiber.Cookie{
				Name:     s.config.CookieName,
				Value:    sid,
				HTTPOnly: true,
				Secure:   s.config.CookieSecure,
				SameSite: fiber.CookieSameSiteLaxMode,
				MaxAge:   int(s.config.SessionTTL / time.Second),
				Path:     "/",
			})
		}

		ctx := c.UserContext()
		if rid, ok := c.Locals("requestid").(string); ok {
			ctx = observability.WithRequestID(ctx, rid)
		}
		ctx = observability.WithSessionID(ctx, sid)

		sess := s.sessions.Resolve(ctx, sid)
		if sess.User != nil {
			ctx = observability.WithUserID(ctx, sess.User.ID)
		}

		c.SetUserContext(ctx)
		c.Locals(sessionLocal, sess)
		return c.Next()
	}
}

// sessionFrom returns the session resolved by SessionMiddleware.
func (s *Server) sessionFrom(c *fiber.Ctx) *session.Session {
	if sess, ok := c.Locals(sessionLocal).(*session.Session); ok {
		return sess
	}
	// Middleware not run (direct handler tests); treat as anonymous.
	return &session.Session{State: session.StateAnonymous}
}

// RequireAuth is the route guard for session-requiring views:
// authenticated renders the view unmodified, anonymous is redirected to the
// login view, and Unknown gets a neutral loading page instead of a premature
// redirect while resolution has not settled.
func (s *Server) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess := s.sessionFrom(c)
		switch sess.State {
		case session.StateAuthenticated:
			return c.Next()
		case session.StateAnonymous:
			return c.Redirect("/login", fiber.StatusSeeOther)
		default:
			return c.Status(fiber.StatusServiceUnavailable).Render(
				"templates/loading", fiber.Map{})
		}
	}
}

// RedirectAuthenticated is the inverse guard for the landing, login, and
// signup views: signed-in visitors go straight to the feed.
func (s *Server) RedirectAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess := s.sessionFrom(c)
		switch sess.State {
		case session.StateAuthenticated:
			return c.Redirect("/feed", fiber.StatusSeeOther)
		case session.StateUnknown:
			return c.Status(fiber.StatusServiceUnavailable).Render(
				"templates/loading", fiber.Map{})
		default:
			return c.Next()
		}
	}
}

// StructuredLogger returns a Fiber middleware for logging requests using slog.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		fields := []any{
			"status", status,
			"method", c.Method(),
			"path", c.Path(),
			"ip", c.IP(),
			"latency", time.Since(start),
		}

		if err != nil {
			fields = append(fields, "error", err.Error())
			observability.Logger.ErrorContext(c.UserContext(), "request failed", fields...)
		} else {
			observability.Logger.InfoContext(c.UserContext(), "request processed", fields...)
		}

		return err
	}
}
