package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/elimu/core/course"
)

type courseRepository struct {
	db *courseTable
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db.course}
}

func (repo *courseRepository) CreateCourse(_ context.Context, c course.Course, teacherID int) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.pk++
	c.ID = repo.db.pk
	repo.db.table[c.ID] = &c
	repo.db.teachings[c.ID] = append(repo.db.teachings[c.ID], teacherID)
	return c, nil
}

func (repo *courseRepository) QueryCourses(_ context.Context) ([]course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	courses := make([]course.Course, 0, len(repo.db.table))
	for _, c := range repo.db.table {
		courses = append(courses, *c)
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].Title < courses[j].Title })
	return courses, nil
}

func (repo *courseRepository) GetCourse(_ context.Context, id int) (course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.table[id]; ok {
		return *c, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) TeacherIDs(_ context.Context, courseID int) ([]int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ids := append([]int(nil), repo.db.teachings[courseID]...)
	sort.Ints(ids)
	return ids, nil
}

func (repo *courseRepository) StudentIDs(_ context.Context, courseID int) ([]int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var ids []int
	for _, enr := range repo.db.enrollments {
		if enr.CourseID == courseID {
			ids = append(ids, enr.StudentID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (repo *courseRepository) Enroll(_ context.Context, c course.Course, studentID int, now time.Time) (course.Enrollment, bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var enrolled int
	for _, enr := range repo.db.enrollments {
		if enr.CourseID != c.ID {
			continue
		}
		if enr.StudentID == studentID {
			return enr, false, nil
		}
		enrolled++
	}
	if c.IsFull(enrolled) {
		return course.Enrollment{}, false, course.ErrCourseFull
	}

	repo.db.enrPK++
	enr := course.Enrollment{ID: repo.db.enrPK, CourseID: c.ID, StudentID: studentID, CreatedAt: now}
	repo.db.enrollments = append(repo.db.enrollments, enr)
	return enr, true, nil
}

func (repo *courseRepository) CreateMaterial(_ context.Context, m course.Material) (course.Material, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.matPK++
	m.ID = repo.db.matPK
	repo.db.materials = append(repo.db.materials, m)
	return m, nil
}

func (repo *courseRepository) QueryMaterials(_ context.Context, courseID int) ([]course.Material, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	materials := make([]course.Material, 0)
	for i := len(repo.db.materials) - 1; i >= 0; i-- { // newest first
		if m := repo.db.materials[i]; m.CourseID == courseID {
			materials = append(materials, m)
		}
	}
	return materials, nil
}

// AddTeacher attaches another teacher to a course.
func (repo *courseRepository) AddTeacher(_ context.Context, courseID, teacherID int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[courseID]; !ok {
		return course.ErrNotFound
	}
	for _, id := range repo.db.teachings[courseID] {
		if id == teacherID {
			return nil
		}
	}
	repo.db.teachings[courseID] = append(repo.db.teachings[courseID], teacherID)
	return nil
}
