package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/freetutor/freetutor/core/matching"
	"github.com/freetutor/freetutor/core/user"
)

type matchingApi struct {
	svc      matching.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerMatchingAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options, validate *validator.Validate) {
	api := matchingApi{
		svc:      opts.MatchingSvc,
		usrSvc:   opts.UserSvc,
		validate: validate,
	}

	g.GET("/stats", api.stats)

	rg := g.Group("/requests", jwt)
	rg.POST("", api.createRequest, studentMiddleware())
	rg.GET("", api.browseRequests, tutorMiddleware())
	rg.GET("/mine", api.myRequests, studentMiddleware())
	rg.PATCH("/:id", api.updateRequest, studentMiddleware())
	rg.DELETE("/:id", api.deleteRequest, studentMiddleware())

	ag := g.Group("/applications", jwt)
	ag.POST("", api.apply, tutorMiddleware())
	ag.GET("/mine", api.myApplications, tutorMiddleware())
	ag.PATCH("/:id", api.decideApplication, studentMiddleware())

	g.GET("/connections", api.connections, jwt)
}

// Handlers

func (api *matchingApi) createRequest(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data matching.NewRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	req, err := api.svc.CreateRequest(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	return ctx.JSON(http.StatusCreated, req)
}

func (api *matchingApi) browseRequests(ctx echo.Context) error {
	filter := new(RequestFilter)
	filter.Bind(ctx)

	reqs, err := api.svc.BrowseRequests(ctx.Request().Context(), filter.Filter)
	if err != nil {
		return errors.Wrap(err, "browsing requests")
	}
	if reqs == nil {
		reqs = []matching.TutoringRequest{}
	}
	return ctx.JSON(http.StatusOK, reqs)
}

func (api *matchingApi) myRequests(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	reqs, err := api.svc.StudentRequests(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying requests")
	}
	if reqs == nil {
		reqs = []matching.TutoringRequest{}
	}
	return ctx.JSON(http.StatusOK, reqs)
}

func (api *matchingApi) updateRequest(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data matching.UpdateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	req, err := api.svc.UpdateRequestStatus(ctx.Request().Context(), usr, ctx.Param("id"), data.Status)
	if err != nil {
		return errors.Wrap(err, "updating request status")
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *matchingApi) deleteRequest(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err := api.svc.DeleteRequest(ctx.Request().Context(), usr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting request")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *matchingApi) apply(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data matching.NewApplication
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewApplication")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	app, err := api.svc.Apply(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "applying to request")
	}
	return ctx.JSON(http.StatusCreated, app)
}

func (api *matchingApi) myApplications(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	apps, err := api.svc.TutorApplications(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying applications")
	}
	if apps == nil {
		apps = []matching.TutorApplication{}
	}
	return ctx.JSON(http.StatusOK, apps)
}

func (api *matchingApi) decideApplication(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data matching.ApplicationDecision
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ApplicationDecision")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	if data.Action == "accept" {
		match, err := api.svc.Accept(rctx, usr, ctx.Param("id"))
		if err != nil {
			return errors.Wrap(err, "accepting application")
		}
		return ctx.JSON(http.StatusOK, match)
	}

	app, err := api.svc.Reject(rctx, usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "rejecting application")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *matchingApi) connections(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	conns, err := api.svc.Connections(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying connections")
	}
	if conns == nil {
		conns = []matching.ConnectionRequest{}
	}
	return ctx.JSON(http.StatusOK, conns)
}

func (api *matchingApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}
