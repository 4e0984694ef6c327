package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core/status"
)

type statusApi struct {
	svc      status.ServiceInterface
	validate *validator.Validate
}

func registerStatusAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc status.ServiceInterface, validate *validator.Validate) {
	api := statusApi{svc: svc, validate: validate}

	sg := g.Group("/status", authed...)
	sg.GET("", api.feed)
	sg.POST("", api.post)
	sg.DELETE("/:id", api.delete)
}

type feedFilter struct {
	AuthorID int `query:"author_id"`
}

// Handlers

func (api *statusApi) feed(ctx echo.Context) error {
	filter := new(feedFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []status.Update{})
	}

	upds, err := api.svc.Feed(ctx.Request().Context(), filter.AuthorID)
	if err != nil {
		return errors.Wrap(err, "querying status feed")
	}
	if upds == nil {
		upds = []status.Update{}
	}
	return ctx.JSON(http.StatusOK, upds)
}

func (api *statusApi) post(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data status.NewUpdate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUpdate")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	upd, err := api.svc.Post(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "posting status update")
	}
	return ctx.JSON(http.StatusCreated, upd)
}

func (api *statusApi) delete(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), usr, id); err != nil {
		return errors.Wrap(err, "deleting status update")
	}
	return ctx.NoContent(http.StatusNoContent)
}
