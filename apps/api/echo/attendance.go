package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/mahudhurio/core/attendance"
)

type attendanceAPI struct {
	svc *attendance.Service
}

func registerAttendanceAPI(g *echo.Group, svc *attendance.Service) {
	api := attendanceAPI{svc: svc}

	ag := g.Group("/attendance")
	ag.POST("/scan", api.registerScan)
	ag.POST("/absences", api.markAbsent)
	ag.GET("/status", api.systemStatus)
	ag.DELETE("/records/:id", api.deleteRecord)
	ag.PUT("/records/:id/status", api.correctStatus)
}

// registerScan accepts a decoded QR scan submission.
// A duplicate scan is a 200 with the existing record, not an error:
// stations must be able to show "already scanned" to the supervisor.
func (api *attendanceAPI) registerScan(ctx echo.Context) error {
	data := new(attendance.ScanInput)
	if err := ctx.Bind(data); err != nil {
		return err
	}

	res, err := api.svc.RegisterScan(ctx.Request().Context(), *data)
	if err != nil {
		return err
	}
	if res.Duplicate {
		return ctx.JSON(http.StatusOK, res)
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *attendanceAPI) markAbsent(ctx echo.Context) error {
	data := new(attendance.MarkAbsentInput)
	if err := ctx.Bind(data); err != nil {
		return err
	}

	rec, err := api.svc.MarkAbsent(ctx.Request().Context(), *data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *attendanceAPI) systemStatus(ctx echo.Context) error {
	status, err := api.svc.SystemStatus(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, status)
}

func (api *attendanceAPI) deleteRecord(ctx echo.Context) error {
	res, err := api.svc.DeleteRecord(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *attendanceAPI) correctStatus(ctx echo.Context) error {
	data := new(attendance.CorrectStatusInput)
	if err := ctx.Bind(data); err != nil {
		return err
	}

	res, err := api.svc.CorrectStatus(ctx.Request().Context(), ctx.Param("id"), *data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}
