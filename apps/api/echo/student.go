package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/mahudhurio/core/student"
)

type studentAPI struct {
	svc *student.Service
}

func registerStudentAPI(g *echo.Group, svc *student.Service) {
	api := studentAPI{svc: svc}

	sg := g.Group("/students")
	sg.POST("", api.studentCreate)
	sg.GET("", api.studentQuery)

	dg := sg.Group("/:id")
	dg.GET("", api.studentRetrieve)
	dg.PUT("", api.studentUpdate)
	dg.DELETE("", api.studentDestroy)
}

func (api *studentAPI) studentCreate(ctx echo.Context) error {
	data := new(student.NewStudent)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(api.svc); err != nil {
		return err
	}

	std, err := api.svc.Create(ctx.Request().Context(), *data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, std)
}

func (api *studentAPI) studentQuery(ctx echo.Context) error {
	var filter student.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return err
	}
	var ord Ordering
	ord.Bind(ctx)

	students, err := api.svc.Query(ctx.Request().Context(), filter, ord.Orderings...)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentAPI) studentRetrieve(ctx echo.Context) error {
	std, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *studentAPI) studentUpdate(ctx echo.Context) error {
	id := ctx.Param("id")

	orig, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return err
	}

	data := new(student.UpdateStudent)
	if err = ctx.Bind(data); err != nil {
		return err
	}
	if err = data.Validate(orig, api.svc); err != nil {
		return err
	}

	std, err := api.svc.Update(ctx.Request().Context(), id, *data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *studentAPI) studentDestroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
