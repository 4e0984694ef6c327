package course

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/elimu/core"
)

type (
	Course struct {
		ID          int       `json:"id" db:"id"`
		Title       string    `json:"title" db:"title"`
		Description string    `json:"description" db:"description"`
		MaxStudents *int      `json:"max_students" db:"max_students"` // nil: unlimited
		CreatedAt   time.Time `json:"created_at" db:"created_at"`     // UTC
	}

	Enrollment struct {
		ID        int       `json:"id" db:"id"`
		CourseID  int       `json:"course_id" db:"course_id"`
		StudentID int       `json:"student_id" db:"student_id"`
		CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
	}

	Material struct {
		ID         int       `json:"id" db:"id"`
		CourseID   int       `json:"course_id" db:"course_id"`
		Name       string    `json:"name" db:"name"`
		Path       string    `json:"path" db:"path"`
		UploadedBy int       `json:"uploaded_by" db:"uploaded_by"`
		UploadedAt time.Time `json:"uploaded_at" db:"uploaded_at"` // UTC
	}
)

// IsFull reports whether a course holding `enrolled` students can take no more.
func (c Course) IsFull(enrolled int) bool {
	return c.MaxStudents != nil && enrolled >= *c.MaxStudents
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	MaxStudents *int   `json:"max_students" validate:"omitempty,min=1"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	return validate.Struct(nc)
}

// NewMaterial describes a file already stored elsewhere.
type NewMaterial struct {
	Name string `json:"name" validate:"required,max=255"`
	Path string `json:"path" validate:"required,max=500"`
}

func (nm *NewMaterial) Validate(validate *validator.Validate) error {
	nm.Name = core.CleanString(nm.Name)
	nm.Path = core.CleanString(nm.Path)
	return validate.Struct(nm)
}
