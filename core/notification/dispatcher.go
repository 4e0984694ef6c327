package notification

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/user"
)

const DefaultBatchSize = 500

var NowFunc = time.Now // mockable

type (
	// CourseDirectory resolves the people attached to a course.
	CourseDirectory interface {
		TeacherIDs(ctx context.Context, courseID int) ([]int, error)
		StudentIDs(ctx context.Context, courseID int) ([]int, error)
	}

	// UserDirectory resolves the recipients of notification emails.
	UserDirectory interface {
		GetByID(ctx context.Context, id int) (user.User, error)
	}

	DispatcherOptions struct {
		BatchSize       int
		EmailTeachers   bool
		FrontendBaseURL string
	}

	// Dispatcher turns course events into Notification rows.
	// It is best-effort: nothing it does can fail or block the write that raised the event.
	Dispatcher struct {
		repo    Repository
		courses CourseDirectory
		users   UserDirectory
		mailSvc core.EmailService
		logger  core.Logger
		opts    DispatcherOptions
	}
)

func NewDispatcher(
	repo Repository,
	courses CourseDirectory,
	users UserDirectory,
	mailSvc core.EmailService,
	logger core.Logger,
	opts DispatcherOptions,
) *Dispatcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Dispatcher{
		repo:    repo,
		courses: courses,
		users:   users,
		mailSvc: mailSvc,
		logger:  logger,
		opts:    opts,
	}
}

// OnEnrollment notifies every teacher of the course that a student enrolled.
func (d *Dispatcher) OnEnrollment(ctx context.Context, evt EnrollmentEvent) {
	d.safely("enrollment", func() error {
		teacherIDs, err := d.courses.TeacherIDs(ctx, evt.CourseID)
		if err != nil {
			return errors.Wrap(err, "resolving course teachers")
		}
		notes := evt.notifications(teacherIDs, NowFunc().UTC())
		if err := d.create(ctx, notes); err != nil {
			return err
		}
		if d.opts.EmailTeachers {
			d.mailTeachers(ctx, teacherIDs, notes)
		}
		return nil
	})
}

// OnMaterialAdded notifies every enrolled student of the course, except the uploader.
func (d *Dispatcher) OnMaterialAdded(ctx context.Context, evt MaterialEvent) {
	d.safely("material", func() error {
		studentIDs, err := d.courses.StudentIDs(ctx, evt.CourseID)
		if err != nil {
			return errors.Wrap(err, "resolving course students")
		}
		return d.create(ctx, evt.notifications(studentIDs, NowFunc().UTC()))
	})
}

// create bulk inserts notes, BatchSize rows at a time.
func (d *Dispatcher) create(ctx context.Context, notes []Notification) error {
	for start := 0; start < len(notes); start += d.opts.BatchSize {
		end := start + d.opts.BatchSize
		if end > len(notes) {
			end = len(notes)
		}
		if err := d.repo.BulkCreate(ctx, notes[start:end]); err != nil {
			return errors.Wrapf(err, "creating notifications %d-%d of %d", start, end, len(notes))
		}
	}
	return nil
}

func (d *Dispatcher) mailTeachers(ctx context.Context, teacherIDs []int, notes []Notification) {
	if len(notes) == 0 {
		return
	}
	note := notes[0]
	to := make([]mail.Address, 0, len(teacherIDs))
	for _, id := range teacherIDs {
		usr, err := d.users.GetByID(ctx, id)
		if err != nil {
			d.logger.Warn("resolving teacher email", errors.Wrapf(err, "teacher %d", id))
			continue
		}
		if usr.Email != "" {
			to = append(to, mail.Address{Name: usr.DisplayName(), Address: usr.Email})
		}
	}
	if len(to) == 0 {
		return
	}
	d.mailSvc.SendMessages(&core.EmailMessage{
		To:      to,
		Subject: note.Title,
		BodyStr: note.Message,
		Link:    strings.TrimSuffix(d.opts.FrontendBaseURL, "/") + note.URL,
	})
}

func (d *Dispatcher) safely(event string, dispatch func() error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error(
				"notification dispatch panicked",
				map[string]interface{}{"event": event, "panic": fmt.Sprint(r)},
			)
		}
	}()
	if err := dispatch(); err != nil {
		d.logger.Error("notification dispatch failed", errors.Wrap(err, event))
	}
}
