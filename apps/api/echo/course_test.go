package echoapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elimu/core/course"
	"github.com/trezcool/elimu/core/notification"
	"github.com/trezcool/elimu/core/user"
)

func (app *testApp) createCourse(t *testing.T, teacher user.User, title string, maxStudents *int) course.Course {
	c, err := app.courseSvc.Create(context.Background(), teacher, course.NewCourse{Title: title, MaxStudents: maxStudents})
	require.NoError(t, err)
	return c
}

func (app *testApp) notifications(t *testing.T, usr user.User) []notification.Notification {
	rec := app.do(http.MethodGet, "/v1/notifications", app.token(t, usr), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var notes []notification.Notification
	decode(t, rec, &notes)
	return notes
}

func Test_courseApi_create(t *testing.T) {
	app := setup(t)
	teacher := app.createUser(t, "teach", user.RoleTeacher)
	student := app.createUser(t, "stud", user.RoleStudent)

	rec := app.do(http.MethodPost, "/v1/courses", app.token(t, student), course.NewCourse{Title: "Maths"})
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = app.do(http.MethodPost, "/v1/courses", app.token(t, teacher), course.NewCourse{Title: "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	var fields map[string]string
	decode(t, rec, &fields)
	assert.Equal(t, "this field is required", fields["title"])

	rec = app.do(http.MethodPost, "/v1/courses", app.token(t, teacher), course.NewCourse{Title: " Maths ", Description: "numbers"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var c course.Course
	decode(t, rec, &c)
	assert.NotZero(t, c.ID)
	assert.Equal(t, "Maths", c.Title)
	assert.Nil(t, c.MaxStudents)

	rec = app.do(http.MethodGet, "/v1/courses/"+itoa(c.ID), app.token(t, student), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var detail CourseDetail
	decode(t, rec, &detail)
	assert.Equal(t, c.ID, detail.ID)
	assert.Equal(t, []int{teacher.ID}, detail.TeacherIDs)

	rec = app.do(http.MethodGet, "/v1/courses", app.token(t, student), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var courses []course.Course
	decode(t, rec, &courses)
	assert.Len(t, courses, 1)

	rec = app.do(http.MethodGet, "/v1/courses/999", app.token(t, student), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_courseApi_enroll(t *testing.T) {
	app := setup(t)
	teacher := app.createUser(t, "teach", user.RoleTeacher)
	student := app.createUser(t, "stud", user.RoleStudent)
	other := app.createUser(t, "other", user.RoleStudent)
	one := 1
	c := app.createCourse(t, teacher, "Maths", &one)
	path := "/v1/courses/" + itoa(c.ID) + "/enroll"

	// teachers do not enroll
	rec := app.do(http.MethodPost, path, app.token(t, teacher), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = app.do(http.MethodPost, path, app.token(t, student), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var enr course.Enrollment
	decode(t, rec, &enr)
	assert.Equal(t, c.ID, enr.CourseID)
	assert.Equal(t, student.ID, enr.StudentID)

	// enrolling twice returns the same row and raises no new event
	rec = app.do(http.MethodPost, path, app.token(t, student), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var again course.Enrollment
	decode(t, rec, &again)
	assert.Equal(t, enr.ID, again.ID)

	rec = app.do(http.MethodPost, path, app.token(t, other), nil)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	var herr httpErr
	decode(t, rec, &herr)
	assert.Equal(t, course.ErrCourseFull.Error(), herr.Error)

	notes := app.notifications(t, teacher)
	require.Len(t, notes, 1)
	assert.Equal(t, notification.VerbEnrolled, notes[0].Verb)
	assert.Equal(t, "New enrollment", notes[0].Title)
	assert.Equal(t, "stud enrolled in Maths.", notes[0].Message)
	assert.Equal(t, "/courses/"+itoa(c.ID), notes[0].URL)
}

func Test_courseApi_materials(t *testing.T) {
	app := setup(t)
	teacher := app.createUser(t, "teach", user.RoleTeacher)
	outsider := app.createUser(t, "outsider", user.RoleTeacher)
	student := app.createUser(t, "stud", user.RoleStudent)
	c := app.createCourse(t, teacher, "Maths", nil)
	path := "/v1/courses/" + itoa(c.ID) + "/materials"

	rec := app.do(http.MethodPost, "/v1/courses/"+itoa(c.ID)+"/enroll", app.token(t, student), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	data := course.NewMaterial{Name: "Week 1", Path: "maths/week1.pdf"}
	rec = app.do(http.MethodPost, path, app.token(t, student), data)
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	rec = app.do(http.MethodPost, path, app.token(t, outsider), data)
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	rec = app.do(http.MethodPost, path, app.token(t, teacher), course.NewMaterial{Name: "Week 1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = app.do(http.MethodPost, path, app.token(t, teacher), data)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var m course.Material
	decode(t, rec, &m)
	assert.Equal(t, teacher.ID, m.UploadedBy)

	rec = app.do(http.MethodGet, path, app.token(t, student), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var materials []course.Material
	decode(t, rec, &materials)
	require.Len(t, materials, 1)
	assert.Equal(t, "maths/week1.pdf", materials[0].Path)

	notes := app.notifications(t, student)
	require.Len(t, notes, 1)
	assert.Equal(t, notification.VerbMaterialAdded, notes[0].Verb)
	assert.Equal(t, "New material was added to Maths.", notes[0].Message)

	// the uploader is not a student, so only the enrollment notification is theirs
	teacherNotes := app.notifications(t, teacher)
	require.Len(t, teacherNotes, 1)
	assert.Equal(t, notification.VerbEnrolled, teacherNotes[0].Verb)
}

func Test_courseApi_addTeacher(t *testing.T) {
	app := setup(t)
	teacher := app.createUser(t, "teach", user.RoleTeacher)
	colleague := app.createUser(t, "colleague", user.RoleTeacher)
	student := app.createUser(t, "stud", user.RoleStudent)
	c := app.createCourse(t, teacher, "Maths", nil)
	path := "/v1/courses/" + itoa(c.ID) + "/teachers"

	rec := app.do(http.MethodPost, path, app.token(t, colleague), AddTeacherRequest{TeacherID: colleague.ID})
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = app.do(http.MethodPost, path, app.token(t, teacher), AddTeacherRequest{TeacherID: student.ID})
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = app.do(http.MethodPost, path, app.token(t, teacher), AddTeacherRequest{TeacherID: 999})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	var fields map[string]string
	decode(t, rec, &fields)
	assert.Equal(t, user.ErrNotFound.Error(), fields["teacher_id"])

	for i := 0; i < 2; i++ {
		rec = app.do(http.MethodPost, path, app.token(t, teacher), AddTeacherRequest{TeacherID: colleague.ID})
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	}

	ids, err := app.courseSvc.TeacherIDs(context.Background(), c.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{teacher.ID, colleague.ID}, ids)

	// the colleague may now add materials
	rec = app.do(http.MethodPost, "/v1/courses/"+itoa(c.ID)+"/materials", app.token(t, colleague),
		course.NewMaterial{Name: "Week 1", Path: "maths/week1.pdf"})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}
