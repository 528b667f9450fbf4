// Package models defines the wire types exchanged with the radar REST API
// and the application's error taxonomy.
package models

import "time"

// User is a user account as returned by the backend.
type User struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Bio       string    `json:"bio,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	IsActive  bool      `json:"is_active"`
}

// Post is a feed post. Author is embedded as a snapshot at read time.
type Post struct {
	ID        uint       `json:"id"`
	Title     string     `json:"title,omitempty"`
	Content   string     `json:"content"`
	ImageURL  string     `json:"image_url,omitempty"`
	AuthorID  uint       `json:"author_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Author    User       `json:"author"`
}

// Token is the credential pair issued by POST /auth/token.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// UserCreate is the signup request body.
type UserCreate struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserUpdate is a partial profile update. Nil fields are left untouched
// by the backend.
type UserUpdate struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Bio      *string `json:"bio,omitempty"`
}

// PostCreate is the JSON variant of post creation. The multipart variant
// carries the same fields plus an optional file part.
type PostCreate struct {
	Title    string `json:"title,omitempty"`
	Content  string `json:"content"`
	ImageURL string `json:"image_url,omitempty"`
}

// PostUpdate is a partial post update.
type PostUpdate struct {
	Title    *string `json:"title,omitempty"`
	Content  *string `json:"content,omitempty"`
	ImageURL *string `json:"image_url,omitempty"`
}
