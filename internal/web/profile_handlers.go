package web

import (
	"radar/internal/models"
	"radar/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// Profile renders a user's public profile and their posts. Unknown ids get
// a localized not-found page rather than an error.
func (s *Server) Profile(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return s.renderUserNotFound(c)
	}
	return s.renderProfile(c, id, fiber.StatusOK, fiber.Map{
		"Editing": c.Query("edit") == "1",
	})
}

func (s *Server) renderProfile(c *fiber.Ctx, id uint, status int, data fiber.Map) error {
	sess := s.sessionFrom(c)

	user, err := s.api.GetUser(c.UserContext(), sess.Token, id)
	if err != nil {
		if models.IsNotFound(err) {
			return s.renderUserNotFound(c)
		}
		observability.Logger.WarnContext(c.UserContext(), "profile load failed", "error", err)
		return c.Status(fiber.StatusBadGateway).Render("templates/error",
			bind(sess, fiber.Map{"Message": models.ErrorMessage(err, "Could not load profile")}))
	}

	posts, err := s.api.UserPosts(c.UserContext(), sess.Token, id)
	if err != nil {
		observability.Logger.WarnContext(c.UserContext(), "user posts load failed", "error", err)
		if _, present := data["Error"]; !present {
			data["Error"] = models.ErrorMessage(err, "Could not load posts")
		}
	}

	data["Profile"] = user
	data["Posts"] = s.postViews(posts)
	data["IsOwnProfile"] = sess.User != nil && sess.User.ID == user.ID
	return c.Status(status).Render("templates/profile", bind(sess, data))
}

func (s *Server) renderUserNotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).Render("templates/notfound",
		bind(s.sessionFrom(c), fiber.Map{"Message": "User not found"}))
}

// UpdateProfile edits the session user's own profile. The updated snapshot
// is routed back through the session manager so the shared cached user can
// never go stale.
func (s *Server) UpdateProfile(c *fiber.Ctx) error {
	sess := s.sessionFrom(c)

	username := c.FormValue("username")
	email := c.FormValue("email")
	bio := c.FormValue("bio")

	if username == "" || email == "" {
		return s.renderProfile(c, sess.User.ID, fiber.StatusBadRequest, fiber.Map{
			"Error":   "Username and email are required",
			"Editing": true,
		})
	}

	updated, err := s.api.UpdateCurrentUser(c.UserContext(), sess.Token, models.UserUpdate{
		Username: &username,
		Email:    &email,
		Bio:      &bio,
	})
	if err != nil {
		return s.renderProfile(c, sess.User.ID, fiber.StatusBadRequest, fiber.Map{
			"Error":   models.ErrorMessage(err, "Error updating profile"),
			"Editing": true,
		})
	}

	if err := s.sessions.UpdateUser(c.UserContext(), sess.ID, updated); err != nil {
		observability.Logger.ErrorContext(c.UserContext(), "session user refresh failed", "error", err)
	}

	return c.Redirect("/profile/"+itoa(updated.ID), fiber.StatusSeeOther)
}

// DeleteAccount deletes the session user's account and ends the session.
// A failure leaves both the account and the session untouched.
func (s *Server) DeleteAccount(c *fiber.Ctx) error {
	sess := s.sessionFrom(c)

	if err := s.api.DeleteCurrentUser(c.UserContext(), sess.Token); err != nil {
		return s.renderProfile(c, sess.User.ID, fiber.StatusBadGateway, fiber.Map{
			"Error": models.ErrorMessage(err, "Error deleting account"),
		})
	}

	s.sessions.Logout(c.UserContext(), sess.ID)
	return c.Redirect("/login", fiber.StatusSeeOther)
}
