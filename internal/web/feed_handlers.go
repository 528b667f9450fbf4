package web

import (
	"radar/internal/api"
	"radar/internal/models"
	"radar/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// createPostAction names the busy flag guarding post creation.
const createPostAction = "create_post"

// Feed renders the reverse-chronological feed with the inline create form.
func (s *Server) Feed(c *fiber.Ctx) error {
	return s.renderFeed(c, fiber.StatusOK, fiber.Map{})
}

// renderFeed fetches the current feed page and renders it with any extra
// view data (error banners, preserved form values).
func (s *Server) renderFeed(c *fiber.Ctx, status int, data fiber.Map) error {
	sess := s.sessionFrom(c)

	posts, err := s.api.ListPosts(c.UserContext(), sess.Token, 0, api.DefaultPageSize)
	if err != nil {
		observability.Logger.WarnContext(c.UserContext(), "feed load failed", "error", err)
		if _, ok := data["Error"]; !ok {
			data["Error"] = models.ErrorMessage(err, "Could not load posts")
		}
	}

	data["Posts"] = s.postViews(posts)
	return c.Status(status).Render("templates/feed", bind(sess, data))
}

// CreatePost submits the inline form: multipart passthrough when a file is
// attached, JSON otherwise. The busy flag guarantees a second submission
// issues no upstream request while the first is in flight.
func (s *Server) CreatePost(c *fiber.Ctx) error {
	sess := s.sessionFrom(c)

	title := c.FormValue("title")
	content := c.FormValue("content")
	imageURL := c.FormValue("image_url")

	formData := fiber.Map{
		"FormTitle":   title,
		"FormContent": content,
		"ShowForm":    true,
	}

	if content == "" {
		formData["Error"] = "Content is required"
		return s.renderFeed(c, fiber.StatusBadRequest, formData)
	}

	if !s.sessions.BeginAction(c.UserContext(), sess.ID, createPostAction) {
		formData["Error"] = "Your post is still being created"
		return s.renderFeed(c, fiber.StatusConflict, formData)
	}
	defer s.sessions.EndAction(c.UserContext(), sess.ID, createPostAction)

	var err error
	if fh, fErr := c.FormFile("file"); fErr == nil && fh != nil && fh.Size > 0 {
		file, openErr := fh.Open()
		if openErr != nil {
			formData["Error"] = "Could not read the attached file"
			return s.renderFeed(c, fiber.StatusBadRequest, formData)
		}
		defer func() { _ = file.Close() }()
		_, err = s.api.CreatePostMultipart(c.UserContext(), sess.Token, title, content, fh.Filename, file)
	} else {
		_, err = s.api.CreatePost(c.UserContext(), sess.Token, models.PostCreate{
			Title:    title,
			Content:  content,
			ImageURL: imageURL,
		})
	}

	if err != nil {
		formData["Error"] = models.ErrorMessage(err, "An error occurred while creating the post")
		return s.renderFeed(c, fiber.StatusBadGateway, formData)
	}

	return c.Redirect("/feed", fiber.StatusSeeOther)
}

// DeletePost removes a post. The item is never removed locally before the
// backend confirms: a failure re-renders the unchanged feed with a banner.
func (s *Server) DeletePost(c *fiber.Ctx) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.Status(fiber.StatusNotFound).Render("templates/notfound", fiber.Map{
			"Message": "Post not found",
		})
	}

	sess := s.sessionFrom(c)
	if err := s.api.DeletePost(c.UserContext(), sess.Token, id); err != nil {
		return s.renderFeed(c, fiber.StatusBadGateway, fiber.Map{
			"Error": models.ErrorMessage(err, "Could not delete the post"),
		})
	}

	return c.Redirect("/feed", fiber.StatusSeeOther)
}
