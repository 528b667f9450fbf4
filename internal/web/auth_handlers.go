package web

import (
	"radar/internal/models"
	"radar/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// Landing renders the welcome page for signed-out visitors.
func (s *Server) Landing(c *fiber.Ctx) error {
	return c.Render("templates/landing", bind(s.sessionFrom(c), nil))
}

// LoginPage renders the login form.
func (s *Server) LoginPage(c *fiber.Ctx) error {
	return c.Render("templates/login", fiber.Map{})
}

// LoginSubmit authenticates the submitted credentials through the session
// manager. A failed attempt stays on the form; nothing is stored.
func (s *Server) LoginSubmit(c *fiber.Ctx) error {
	username := c.FormValue("username")
	password := c.FormValue("password")

	sess := s.sessionFrom(c)
	if _, err := s.sessions.Login(c.UserContext(), sess.ID, username, password); err != nil {
		observability.Logger.InfoContext(c.UserContext(), "login failed", "username", username)
		return c.Status(loginErrorStatus(err)).Render("templates/login", fiber.Map{
			"Error":    "Invalid username or password",
			"Username": username,
		})
	}

	return c.Redirect("/feed", fiber.StatusSeeOther)
}

// SignupPage renders the registration form.
func (s *Server) SignupPage(c *fiber.Ctx) error {
	return c.Render("templates/signup", fiber.Map{})
}

// SignupSubmit registers a new account and signs the visitor in. The
// password confirmation is checked locally first: on mismatch no network
// request is issued.
func (s *Server) SignupSubmit(c *fiber.Ctx) error {
	form := models.UserCreate{
		Username: c.FormValue("username"),
		Email:    c.FormValue("email"),
		Password: c.FormValue("password"),
	}
	confirm := c.FormValue("confirm_password")

	renderErr := func(status int, msg string) error {
		return c.Status(status).Render("templates/signup", fiber.Map{
			"Error":    msg,
			"Username": form.Username,
			"Email":    form.Email,
		})
	}

	if form.Password != confirm {
		return renderErr(fiber.StatusBadRequest, "Passwords do not match")
	}
	if form.Username == "" || form.Email == "" || form.Password == "" {
		return renderErr(fiber.StatusBadRequest, "All fields are required")
	}

	if _, err := s.api.CreateUser(c.UserContext(), form); err != nil {
		return renderErr(fiber.StatusBadRequest,
			models.ErrorMessage(err, "An error occurred during signup"))
	}

	// Auto-login after successful signup
	sess := s.sessionFrom(c)
	if _, err := s.sessions.Login(c.UserContext(), sess.ID, form.Username, form.Password); err != nil {
		// The account exists; let the visitor sign in by hand.
		return c.Redirect("/login", fiber.StatusSeeOther)
	}

	return c.Redirect("/feed", fiber.StatusSeeOther)
}

// Logout clears the session unconditionally and returns to the login view.
func (s *Server) Logout(c *fiber.Ctx) error {
	sess := s.sessionFrom(c)
	s.sessions.Logout(c.UserContext(), sess.ID)
	return c.Redirect("/login", fiber.StatusSeeOther)
}

// loginErrorStatus maps a login failure to the page's response status.
func loginErrorStatus(err error) int {
	if models.IsTransportError(err) {
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusUnauthorized
}
