package web

import (
	"strconv"

	"radar/internal/models"
	"radar/internal/session"

	"github.com/gofiber/fiber/v2"
)

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// bind fills in the fields every template expects from the current session.
func bind(sess *session.Session, data fiber.Map) fiber.Map {
	if data == nil {
		data = fiber.Map{}
	}
	if sess != nil && sess.User != nil {
		data["User"] = sess.User
	}
	return data
}

// parseID extracts a route parameter as a positive uint. The second return
// is false when the parameter is not a usable ID.
func parseID(c *fiber.Ctx, param string) (uint, bool) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		return 0, false
	}
	return uint(id), true
}

// postView pairs a post with its render-ready image URL.
type postView struct {
	models.Post
	ImageSrc string
}

// postViews resolves image URLs for rendering. Relative upstream URLs point
// at files the backend serves, so they are made absolute here.
func (s *Server) postViews(posts []models.Post) []postView {
	views := make([]postView, 0, len(posts))
	for _, p := range posts {
		views = append(views, postView{
			Post:     p,
			ImageSrc: s.api.ResolveImageURL(p.ImageURL),
		})
	}
	return views
}
