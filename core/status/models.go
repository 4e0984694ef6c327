package status

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/elimu/core"
)

// Update is a short public post on a student's profile.
type Update struct {
	ID        int       `json:"id" db:"id"`
	AuthorID  int       `json:"author_id" db:"author_id"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
}

type NewUpdate struct {
	Content string `json:"content" validate:"required,max=500"`
}

func (nu *NewUpdate) Validate(validate *validator.Validate) error {
	nu.Content = core.CleanString(nu.Content)
	return validate.Struct(nu)
}
