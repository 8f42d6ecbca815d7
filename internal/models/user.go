package models

// User is the only record the service stores. Username doubles as the
// search engine document ID.
type User struct {
	Username string `json:"username" bson:"username"`
	Email    string `json:"email" bson:"email"`
}

// UserCreate is the body accepted by POST /users. Both fields must be present.
// Email may be empty; username may not, since it becomes the document ID.
type UserCreate struct {
	Username string  `json:"username" binding:"required"`
	Email    *string `json:"email" binding:"required"`
}

func (c UserCreate) User() *User {
	return &User{Username: c.Username, Email: *c.Email}
}

// UserUpdate is the body accepted by PUT /users/:username. Email must be
// present and may be empty.
type UserUpdate struct {
	Email *string `json:"email" binding:"required"`
}

// Hit is one listed document: its ID and stored source fields.
type Hit struct {
	ID      string `json:"id"`
	Details User   `json:"details"`
}
