package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/course"
	"github.com/trezcool/elimu/core/user"
)

type courseApi struct {
	svc      course.ServiceInterface
	usrSvc   user.ServiceInterface
	validate *validator.Validate
}

func registerCourseAPI(
	g *echo.Group,
	authed []echo.MiddlewareFunc,
	svc course.ServiceInterface,
	usrSvc user.ServiceInterface,
	validate *validator.Validate,
) {
	api := courseApi{
		svc:      svc,
		usrSvc:   usrSvc,
		validate: validate,
	}

	cg := g.Group("/courses", authed...)
	cg.GET("", api.query)
	cg.POST("", api.create, teacherMiddleware)

	dg := cg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.POST("/enroll", api.enroll)
	dg.POST("/teachers", api.addTeacher, teacherMiddleware)
	dg.GET("/materials", api.queryMaterials)
	dg.POST("/materials", api.addMaterial, teacherMiddleware)
}

// Handlers

func (api *courseApi) query(ctx echo.Context) error {
	courses, err := api.svc.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	c, err := api.svc.GetByID(reqCtx, id)
	if err != nil {
		return errors.Wrap(err, "finding course by ID")
	}
	teacherIDs, err := api.svc.TeacherIDs(reqCtx, c.ID)
	if err != nil {
		return errors.Wrap(err, "finding course teachers")
	}
	if teacherIDs == nil {
		teacherIDs = []int{}
	}
	return ctx.JSON(http.StatusOK, CourseDetail{Course: c, TeacherIDs: teacherIDs})
}

func (api *courseApi) enroll(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	enr, err := api.svc.Enroll(ctx.Request().Context(), usr, id)
	if err != nil {
		return errors.Wrap(err, "enrolling student")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *courseApi) addTeacher(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	var data AddTeacherRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AddTeacherRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	teacher, err := api.usrSvc.GetByID(reqCtx, data.TeacherID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(nil, core.FieldError{Field: "teacher_id", Error: err.Error()})
		}
		return errors.Wrap(err, "finding teacher by ID")
	}
	if err := api.svc.AddTeacher(reqCtx, usr, id, teacher); err != nil {
		return errors.Wrap(err, "adding teacher")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) queryMaterials(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	materials, err := api.svc.Materials(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying materials")
	}
	if materials == nil {
		materials = []course.Material{}
	}
	return ctx.JSON(http.StatusOK, materials)
}

func (api *courseApi) addMaterial(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	var data course.NewMaterial
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMaterial")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	m, err := api.svc.AddMaterial(ctx.Request().Context(), usr, id, data)
	if err != nil {
		return errors.Wrap(err, "adding material")
	}
	return ctx.JSON(http.StatusCreated, m)
}

type (
	CourseDetail struct {
		course.Course
		TeacherIDs []int `json:"teacher_ids"`
	}

	AddTeacherRequest struct {
		TeacherID int `json:"teacher_id" validate:"required,gt=0"`
	}
)
