package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/freetutor/freetutor/core"
	"github.com/freetutor/freetutor/core/profile"
	"github.com/freetutor/freetutor/core/user"
)

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	StudentRegistration struct {
		User    user.NewUser              `json:"user"`
		Profile profile.NewStudentProfile `json:"profile"`
	}

	TutorRegistration struct {
		User    user.NewUser            `json:"user"`
		Profile profile.NewTutorProfile `json:"profile"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true)
	return validate.Struct(lr)
}

func (prr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	prr.Email = core.CleanString(prr.Email, true)
	return validate.Struct(prr)
}

type userApi struct {
	svc      user.Service
	profSvc  profile.Service
	validate *validator.Validate
}

func registerUserAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options, validate *validator.Validate) {
	api := userApi{
		svc:      opts.UserSvc,
		profSvc:  opts.ProfileSvc,
		validate: validate,
	}

	ug := g.Group("/users")

	// un-authed endpoints
	// TODO: rate limit `/password-reset` & `/password-reset-confirm`
	ug.POST("/register/student", api.registerStudent)
	ug.POST("/register/tutor", api.registerTutor)
	ug.POST("/login", api.login)
	ug.POST("/password-reset", api.resetPassword)
	ug.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authed endpoints
	ag := ug.Group("", jwt)
	ag.POST("/token-refresh", api.refreshToken)
	ag.GET("/me", api.retrieveMe)
}

// Handlers

func (api *userApi) registerStudent(ctx echo.Context) error {
	var data StudentRegistration
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StudentRegistration")
	}
	data.User.Role = user.RoleStudent
	if err := data.User.Validate(api.validate, api.svc); err != nil {
		return err
	}
	if err := data.Profile.Validate(api.validate); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	usr, err := api.svc.Register(rctx, data.User)
	if err != nil {
		return errors.Wrap(err, "registering user")
	}
	prof, err := api.profSvc.CreateStudent(rctx, usr, data.Profile)
	if err != nil {
		// do not leave an account without a profile behind
		if dErr := api.svc.Delete(rctx, usr.ID); dErr != nil {
			ctx.Logger().Errorf("%+v", errors.Wrap(dErr, "rolling back user registration"))
		}
		return errors.Wrap(err, "creating student profile")
	}

	return ctx.JSON(http.StatusCreated, echo.Map{"user": usr, "profile": prof})
}

func (api *userApi) registerTutor(ctx echo.Context) error {
	var data TutorRegistration
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TutorRegistration")
	}
	data.User.Role = user.RoleTutor
	if err := data.User.Validate(api.validate, api.svc); err != nil {
		return err
	}
	if err := data.Profile.Validate(api.validate); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	usr, err := api.svc.Register(rctx, data.User)
	if err != nil {
		return errors.Wrap(err, "registering user")
	}
	prof, err := api.profSvc.CreateTutor(rctx, usr, data.Profile)
	if err != nil {
		if dErr := api.svc.Delete(rctx, usr.ID); dErr != nil {
			ctx.Logger().Errorf("%+v", errors.Wrap(dErr, "rolling back user registration"))
		}
		return errors.Wrap(err, "creating tutor profile")
	}

	return ctx.JSON(http.StatusCreated, echo.Map{"user": usr, "profile": prof})
}

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := authenticate(ctx, data.Email, data.Password, api.svc)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := GenerateToken(GetUserClaims(usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); !(err == nil || errors.Cause(err) == user.ErrNotFound) {
		// do not return errors to attackers
		ctx.Logger().Errorf("%+v", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	usr, err := getContextUser(ctx, api.svc, claims)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !usr.Active() {
		return errAccountDeactivated
	}

	token, err := refreshToken(claims, usr)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) retrieveMe(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, usr)
}
