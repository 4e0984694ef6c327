package notification

import (
	"strconv"
	"time"
)

// Verbs
const (
	VerbEnrolled      = "enrolled"
	VerbMaterialAdded = "material_added"
)

type Notification struct {
	ID          int       `json:"id" db:"id"`
	RecipientID int       `json:"recipient_id" db:"recipient_id"`
	ActorID     *int      `json:"actor_id" db:"actor_id"`
	CourseID    *int      `json:"course_id" db:"course_id"`
	Verb        string    `json:"verb" db:"verb"`
	Title       string    `json:"title" db:"title"`
	Message     string    `json:"message" db:"message"`
	URL         string    `json:"url" db:"url"`
	IsRead      bool      `json:"is_read" db:"is_read"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"` // UTC
}

type (
	// EnrollmentEvent is raised once a student has been enrolled in a course.
	EnrollmentEvent struct {
		CourseID    int
		CourseTitle string
		StudentID   int
		StudentName string
	}

	// MaterialEvent is raised once a teacher has added a material to a course.
	MaterialEvent struct {
		CourseID     int
		CourseTitle  string
		MaterialName string
		UploaderID   int
	}
)

func courseURL(courseID int) string {
	return "/courses/" + strconv.Itoa(courseID)
}

func intPtr(i int) *int { return &i }

func (e EnrollmentEvent) notifications(teacherIDs []int, now time.Time) []Notification {
	notes := make([]Notification, 0, len(teacherIDs))
	for _, id := range teacherIDs {
		notes = append(notes, Notification{
			RecipientID: id,
			ActorID:     intPtr(e.StudentID),
			CourseID:    intPtr(e.CourseID),
			Verb:        VerbEnrolled,
			Title:       "New enrollment",
			Message:     e.StudentName + " enrolled in " + e.CourseTitle + ".",
			URL:         courseURL(e.CourseID),
			CreatedAt:   now,
		})
	}
	return notes
}

func (e MaterialEvent) notifications(studentIDs []int, now time.Time) []Notification {
	notes := make([]Notification, 0, len(studentIDs))
	for _, id := range studentIDs {
		if id == e.UploaderID {
			continue
		}
		notes = append(notes, Notification{
			RecipientID: id,
			ActorID:     intPtr(e.UploaderID),
			CourseID:    intPtr(e.CourseID),
			Verb:        VerbMaterialAdded,
			Title:       "New material uploaded",
			Message:     "New material was added to " + e.CourseTitle + ".",
			URL:         courseURL(e.CourseID),
			CreatedAt:   now,
		})
	}
	return notes
}
