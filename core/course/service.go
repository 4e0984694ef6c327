package course

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core/notification"
	"github.com/trezcool/elimu/core/user"
)

var (
	// errors
	ErrNotFound   = errors.New("course not found")
	ErrForbidden  = errors.New("not allowed on this course")
	ErrNoTeacher  = errors.New("course has no teacher yet")
	ErrCourseFull = errors.New("course is full")
)

type (
	Repository interface {
		// CreateCourse creates the course and the teaching row of its first teacher atomically.
		CreateCourse(ctx context.Context, c Course, teacherID int) (Course, error)
		// AddTeacher attaches a teacher to a course; attaching twice is a no-op.
		AddTeacher(ctx context.Context, courseID, teacherID int) error
		QueryCourses(ctx context.Context) ([]Course, error)
		GetCourse(ctx context.Context, id int) (Course, error)
		TeacherIDs(ctx context.Context, courseID int) ([]int, error)
		StudentIDs(ctx context.Context, courseID int) ([]int, error)
		// Enroll gets or creates the enrollment; created reports whether a row was inserted.
		// It returns ErrCourseFull when a new enrollment would exceed Course.MaxStudents.
		Enroll(ctx context.Context, c Course, studentID int, now time.Time) (enr Enrollment, created bool, err error)
		CreateMaterial(ctx context.Context, m Material) (Material, error)
		QueryMaterials(ctx context.Context, courseID int) ([]Material, error)
	}

	// Notifier receives the domain events raised by course writes.
	// Implementations must not fail or block the write path.
	Notifier interface {
		OnEnrollment(ctx context.Context, evt notification.EnrollmentEvent)
		OnMaterialAdded(ctx context.Context, evt notification.MaterialEvent)
	}

	ServiceInterface interface {
		Create(ctx context.Context, teacher user.User, nc NewCourse) (Course, error)
		AddTeacher(ctx context.Context, by user.User, courseID int, teacher user.User) error
		Query(ctx context.Context) ([]Course, error)
		GetByID(ctx context.Context, id int) (Course, error)
		Enroll(ctx context.Context, student user.User, courseID int) (Enrollment, error)
		AddMaterial(ctx context.Context, teacher user.User, courseID int, nm NewMaterial) (Material, error)
		Materials(ctx context.Context, courseID int) ([]Material, error)
		TeacherIDs(ctx context.Context, courseID int) ([]int, error)
		StudentIDs(ctx context.Context, courseID int) ([]int, error)
	}

	Service struct {
		repo     Repository
		notifier Notifier
	}
)

var (
	_ ServiceInterface             = (*Service)(nil) // interface compliance check
	_ notification.CourseDirectory = (*Service)(nil)
	_ Notifier                     = (*notification.Dispatcher)(nil)
)

func NewService(repo Repository, notifier Notifier) *Service {
	return &Service{repo: repo, notifier: notifier}
}

// SetNotifier replaces the notifier. The dispatcher needs the course service as its directory,
// so the two are wired after construction.
func (svc *Service) SetNotifier(notifier Notifier) {
	svc.notifier = notifier
}

func (svc *Service) Create(ctx context.Context, teacher user.User, nc NewCourse) (Course, error) {
	if !teacher.IsTeacher() {
		return Course{}, ErrForbidden
	}
	c := Course{
		Title:       nc.Title,
		Description: nc.Description,
		MaxStudents: nc.MaxStudents,
		CreatedAt:   time.Now().UTC(),
	}
	return svc.repo.CreateCourse(ctx, c, teacher.ID)
}

// AddTeacher lets a teacher of the course share it with another teacher.
func (svc *Service) AddTeacher(ctx context.Context, by user.User, courseID int, teacher user.User) error {
	c, err := svc.GetByID(ctx, courseID)
	if err != nil {
		return err
	}
	teaches, err := svc.teaches(ctx, by, c.ID)
	if err != nil {
		return err
	}
	if !teaches || !teacher.IsTeacher() || !teacher.IsActive {
		return ErrForbidden
	}
	return svc.repo.AddTeacher(ctx, c.ID, teacher.ID)
}

func (svc *Service) Query(ctx context.Context) ([]Course, error) {
	return svc.repo.QueryCourses(ctx)
}

func (svc *Service) GetByID(ctx context.Context, id int) (Course, error) {
	if id <= 0 {
		return Course{}, ErrNotFound
	}
	return svc.repo.GetCourse(ctx, id)
}

// Enroll is idempotent: enrolling twice returns the first enrollment and raises a single event.
func (svc *Service) Enroll(ctx context.Context, student user.User, courseID int) (Enrollment, error) {
	if !student.IsStudent() {
		return Enrollment{}, ErrForbidden
	}
	c, err := svc.GetByID(ctx, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	teacherIDs, err := svc.repo.TeacherIDs(ctx, c.ID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "resolving course teachers")
	}
	if len(teacherIDs) == 0 {
		return Enrollment{}, ErrNoTeacher
	}

	enr, created, err := svc.repo.Enroll(ctx, c, student.ID, time.Now().UTC())
	if err != nil {
		return Enrollment{}, err
	}
	if created && svc.notifier != nil {
		svc.notifier.OnEnrollment(ctx, notification.EnrollmentEvent{
			CourseID:    c.ID,
			CourseTitle: c.Title,
			StudentID:   student.ID,
			StudentName: student.DisplayName(),
		})
	}
	return enr, nil
}

func (svc *Service) AddMaterial(ctx context.Context, teacher user.User, courseID int, nm NewMaterial) (Material, error) {
	c, err := svc.GetByID(ctx, courseID)
	if err != nil {
		return Material{}, err
	}
	teaches, err := svc.teaches(ctx, teacher, c.ID)
	if err != nil {
		return Material{}, err
	}
	if !teaches {
		return Material{}, ErrForbidden
	}

	m, err := svc.repo.CreateMaterial(ctx, Material{
		CourseID:   c.ID,
		Name:       nm.Name,
		Path:       nm.Path,
		UploadedBy: teacher.ID,
		UploadedAt: time.Now().UTC(),
	})
	if err != nil {
		return Material{}, err
	}
	if svc.notifier != nil {
		svc.notifier.OnMaterialAdded(ctx, notification.MaterialEvent{
			CourseID:     c.ID,
			CourseTitle:  c.Title,
			MaterialName: m.Name,
			UploaderID:   teacher.ID,
		})
	}
	return m, nil
}

func (svc *Service) Materials(ctx context.Context, courseID int) ([]Material, error) {
	if _, err := svc.GetByID(ctx, courseID); err != nil {
		return nil, err
	}
	return svc.repo.QueryMaterials(ctx, courseID)
}

func (svc *Service) TeacherIDs(ctx context.Context, courseID int) ([]int, error) {
	return svc.repo.TeacherIDs(ctx, courseID)
}

func (svc *Service) StudentIDs(ctx context.Context, courseID int) ([]int, error) {
	return svc.repo.StudentIDs(ctx, courseID)
}

func (svc *Service) teaches(ctx context.Context, usr user.User, courseID int) (bool, error) {
	if !usr.IsTeacher() {
		return false, nil
	}
	teacherIDs, err := svc.repo.TeacherIDs(ctx, courseID)
	if err != nil {
		return false, errors.Wrap(err, "resolving course teachers")
	}
	for _, id := range teacherIDs {
		if id == usr.ID {
			return true, nil
		}
	}
	return false, nil
}
