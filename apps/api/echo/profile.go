package echoapi

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/freetutor/freetutor/core"
	"github.com/freetutor/freetutor/core/profile"
	"github.com/freetutor/freetutor/core/user"
)

// allowed document content types, mapped to canonical extensions
var docContentTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
}

type (
	SignedURLRequest struct {
		Key string `json:"key" validate:"required"`
	}

	SignedURLResponse struct {
		URL string `json:"url"`
	}

	DocumentsResponse struct {
		Documents []string `json:"documents"`
	}
)

type profileApi struct {
	svc      profile.Service
	usrSvc   user.Service
	storage  core.DocumentStorage
	validate *validator.Validate
}

func registerProfileAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options, validate *validator.Validate) {
	api := profileApi{
		svc:      opts.ProfileSvc,
		usrSvc:   opts.UserSvc,
		storage:  opts.DocStorage,
		validate: validate,
	}

	pg := g.Group("/profiles", jwt)
	pg.GET("/me", api.retrieveMe)
	pg.PUT("/me", api.updateMe)

	dg := g.Group("/documents", jwt)
	dg.POST("", api.uploadDocuments)
	dg.POST("/signed-url", api.signDocumentURL)

	ag := g.Group("/admin", jwt, adminMiddleware())
	ag.GET("/verifications", api.pendingVerifications)
	ag.POST("/verify", api.verify)
}

// Handlers

func (api *profileApi) retrieveMe(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	rctx := ctx.Request().Context()
	switch {
	case usr.IsStudent():
		prof, err := api.svc.StudentByUserID(rctx, usr.ID)
		if err != nil {
			return errors.Wrap(err, "getting student profile")
		}
		return ctx.JSON(http.StatusOK, prof)
	case usr.IsTutor():
		prof, err := api.svc.TutorByUserID(rctx, usr.ID)
		if err != nil {
			return errors.Wrap(err, "getting tutor profile")
		}
		return ctx.JSON(http.StatusOK, prof)
	}
	return profile.ErrRoleMismatch
}

func (api *profileApi) updateMe(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	rctx := ctx.Request().Context()
	switch {
	case usr.IsStudent():
		var data profile.UpdateStudentProfile
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to UpdateStudentProfile")
		}
		if err := data.Validate(api.validate); err != nil {
			return err
		}
		prof, err := api.svc.UpdateStudent(rctx, usr, data)
		if err != nil {
			return errors.Wrap(err, "updating student profile")
		}
		return ctx.JSON(http.StatusOK, prof)
	case usr.IsTutor():
		var data profile.UpdateTutorProfile
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to UpdateTutorProfile")
		}
		if err := data.Validate(api.validate); err != nil {
			return err
		}
		prof, err := api.svc.UpdateTutor(rctx, usr, data)
		if err != nil {
			return errors.Wrap(err, "updating tutor profile")
		}
		return ctx.JSON(http.StatusOK, prof)
	}
	return profile.ErrRoleMismatch
}

func (api *profileApi) uploadDocuments(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	form, err := ctx.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form expected")
	}
	files := form.File["documents"]
	if len(files) == 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "documents", Error: "at least one document is required"})
	}

	rctx := ctx.Request().Context()
	keys := make([]string, 0, len(files))
	for _, fh := range files {
		if fh.Size > core.Conf.OSS.UploadMaxSize {
			return core.NewValidationError(nil, core.FieldError{
				Field: "documents",
				Error: fmt.Sprintf("%s exceeds the maximum upload size", fh.Filename),
			})
		}
		contentType := fh.Header.Get(echo.HeaderContentType)
		ext, ok := docContentTypes[contentType]
		if !ok {
			return core.NewValidationError(nil, core.FieldError{
				Field: "documents",
				Error: fmt.Sprintf("%s: only PDF, JPEG and PNG documents are accepted", fh.Filename),
			})
		}
		if origExt := strings.ToLower(filepath.Ext(fh.Filename)); origExt == ".jpeg" || origExt == ext {
			ext = origExt
		}

		src, err := fh.Open()
		if err != nil {
			return errors.Wrap(err, "opening uploaded file")
		}
		key := fmt.Sprintf("%s/%s/%s%s", usr.Role, usr.ID, uuid.New(), ext)
		key, err = api.storage.Upload(rctx, key, contentType, src)
		_ = src.Close()
		if err != nil {
			return errors.Wrap(err, "uploading document")
		}
		keys = append(keys, key)
	}

	docs, err := api.svc.AttachDocuments(rctx, usr, keys...)
	if err != nil {
		// the objects are unreachable without profile references
		if dErr := api.storage.Delete(rctx, keys...); dErr != nil {
			ctx.Logger().Errorf("%+v", errors.Wrap(dErr, "cleaning up uploaded documents"))
		}
		return errors.Wrap(err, "attaching documents")
	}

	return ctx.JSON(http.StatusCreated, DocumentsResponse{Documents: docs})
}

func (api *profileApi) signDocumentURL(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data SignedURLRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SignedURLRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	// owners can only sign their own keys; admins review anyone's documents
	if !claims.IsAdmin {
		usr, err := getContextUser(ctx, api.usrSvc, claims)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}
		if !strings.HasPrefix(data.Key, fmt.Sprintf("%s/%s/", usr.Role, usr.ID)) {
			return errHttpForbidden
		}
	}

	url, err := api.storage.SignedURL(ctx.Request().Context(), data.Key, core.Conf.OSS.SignedURLExpiry)
	if err != nil {
		return errors.Wrap(err, "signing document URL")
	}
	return ctx.JSON(http.StatusOK, SignedURLResponse{URL: url})
}

func (api *profileApi) pendingVerifications(ctx echo.Context) error {
	pending, err := api.svc.PendingVerifications(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying pending verifications")
	}
	if pending.Students == nil {
		pending.Students = []profile.StudentProfile{}
	}
	if pending.Tutors == nil {
		pending.Tutors = []profile.TutorProfile{}
	}
	return ctx.JSON(http.StatusOK, pending)
}

func (api *profileApi) verify(ctx echo.Context) error {
	var data profile.VerifyProfile
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VerifyProfile")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.Verify(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "verifying profile")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Verification decision recorded."})
}
