package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/course"
)

const courseColumns = "id, title, description, max_students, created_at"

type courseRow struct {
	ID          int       `db:"id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	MaxStudents null.Int  `db:"max_students"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r courseRow) course() course.Course {
	return course.Course{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		MaxStudents: r.MaxStudents.Ptr(),
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type courseRepository struct {
	db core.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db core.DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo courseRepository) CreateCourse(ctx context.Context, c course.Course, teacherID int) (course.Course, error) {
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := tx.Rebind("INSERT INTO courses (title, description, max_students, created_at) VALUES (?, ?, ?, ?) RETURNING id")
		if err := tx.GetContext(ctx, &c.ID, q, c.Title, c.Description, null.IntFromPtr(c.MaxStudents), c.CreatedAt.UTC()); err != nil {
			return errors.Wrap(err, "inserting course")
		}
		return repo.addTeacher(ctx, tx, c.ID, teacherID)
	})
	if err != nil {
		return course.Course{}, err
	}
	return c, nil
}

func (repo courseRepository) addTeacher(ctx context.Context, exec core.DBExecutor, courseID, teacherID int) error {
	q := exec.Rebind("INSERT INTO course_teachers (course_id, teacher_id) VALUES (?, ?) ON CONFLICT DO NOTHING")
	if _, err := exec.ExecContext(ctx, q, courseID, teacherID); err != nil {
		return errors.Wrap(err, "inserting course teacher")
	}
	return nil
}

func (repo courseRepository) AddTeacher(ctx context.Context, courseID, teacherID int) error {
	if _, err := repo.GetCourse(ctx, courseID); err != nil {
		return err
	}
	return repo.addTeacher(ctx, repo.db, courseID, teacherID)
}

func (repo courseRepository) QueryCourses(ctx context.Context) ([]course.Course, error) {
	var rows []courseRow
	if err := repo.db.SelectContext(ctx, &rows, "SELECT "+courseColumns+" FROM courses ORDER BY title, id"); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, r := range rows {
		courses = append(courses, r.course())
	}
	return courses, nil
}

func (repo courseRepository) getCourse(ctx context.Context, exec core.DBExecutor, id int, lock bool) (course.Course, error) {
	q := "SELECT " + courseColumns + " FROM courses WHERE id = ?"
	if lock {
		q += forUpdate(exec)
	}
	var row courseRow
	if err := exec.GetContext(ctx, &row, exec.Rebind(q), id); err != nil {
		if err == sql.ErrNoRows {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "finding course")
	}
	return row.course(), nil
}

func (repo courseRepository) GetCourse(ctx context.Context, id int) (course.Course, error) {
	return repo.getCourse(ctx, repo.db, id, false)
}

func (repo courseRepository) TeacherIDs(ctx context.Context, courseID int) ([]int, error) {
	var ids []int
	q := repo.db.Rebind("SELECT teacher_id FROM course_teachers WHERE course_id = ? ORDER BY teacher_id")
	if err := repo.db.SelectContext(ctx, &ids, q, courseID); err != nil {
		return nil, errors.Wrap(err, "querying course teachers")
	}
	return ids, nil
}

func (repo courseRepository) StudentIDs(ctx context.Context, courseID int) ([]int, error) {
	var ids []int
	q := repo.db.Rebind("SELECT student_id FROM enrollments WHERE course_id = ? ORDER BY student_id")
	if err := repo.db.SelectContext(ctx, &ids, q, courseID); err != nil {
		return nil, errors.Wrap(err, "querying course students")
	}
	return ids, nil
}

func (repo courseRepository) Enroll(ctx context.Context, c course.Course, studentID int, now time.Time) (course.Enrollment, bool, error) {
	var (
		enr     course.Enrollment
		created bool
	)
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		// the course row serializes concurrent enrollments on postgres
		locked, err := repo.getCourse(ctx, tx, c.ID, true)
		if err != nil {
			return err
		}

		q := tx.Rebind("SELECT id, course_id, student_id, created_at FROM enrollments WHERE course_id = ? AND student_id = ?")
		err = tx.GetContext(ctx, &enr, q, c.ID, studentID)
		switch {
		case err == nil:
			enr.CreatedAt = enr.CreatedAt.UTC()
			return nil
		case err != sql.ErrNoRows:
			return errors.Wrap(err, "finding enrollment")
		}

		var enrolled int
		if err = tx.GetContext(ctx, &enrolled, tx.Rebind("SELECT COUNT(*) FROM enrollments WHERE course_id = ?"), c.ID); err != nil {
			return errors.Wrap(err, "counting enrollments")
		}
		if locked.IsFull(enrolled) {
			return course.ErrCourseFull
		}

		enr = course.Enrollment{CourseID: c.ID, StudentID: studentID, CreatedAt: now.UTC()}
		q = tx.Rebind("INSERT INTO enrollments (course_id, student_id, created_at) VALUES (?, ?, ?) RETURNING id")
		if err = tx.GetContext(ctx, &enr.ID, q, enr.CourseID, enr.StudentID, enr.CreatedAt); err != nil {
			return errors.Wrap(err, "inserting enrollment")
		}
		created = true
		return nil
	})
	if err != nil {
		return course.Enrollment{}, false, err
	}
	return enr, created, nil
}

func (repo courseRepository) CreateMaterial(ctx context.Context, m course.Material) (course.Material, error) {
	q := repo.db.Rebind("INSERT INTO materials (course_id, name, path, uploaded_by, uploaded_at) VALUES (?, ?, ?, ?, ?) RETURNING id")
	if err := repo.db.GetContext(ctx, &m.ID, q, m.CourseID, m.Name, m.Path, m.UploadedBy, m.UploadedAt.UTC()); err != nil {
		return course.Material{}, errors.Wrap(err, "inserting material")
	}
	return m, nil
}

func (repo courseRepository) QueryMaterials(ctx context.Context, courseID int) ([]course.Material, error) {
	materials := make([]course.Material, 0)
	q := repo.db.Rebind(`SELECT id, course_id, name, path, uploaded_by, uploaded_at FROM materials
		WHERE course_id = ? ORDER BY uploaded_at DESC, id DESC`)
	if err := repo.db.SelectContext(ctx, &materials, q, courseID); err != nil {
		return nil, errors.Wrap(err, "querying materials")
	}
	for i := range materials {
		materials[i].UploadedAt = materials[i].UploadedAt.UTC()
	}
	return materials, nil
}
