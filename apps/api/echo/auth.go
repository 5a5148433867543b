package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/freetutor/freetutor/core"
	"github.com/freetutor/freetutor/core/user"
)

const contextUserKey = "user"

var appJWTConfig = middleware.JWTConfig{
	SigningKey:    []byte(core.Conf.SecretKey),
	SigningMethod: middleware.AlgorithmHS256,
	ContextKey:    "userToken",
	Claims:        new(Claims),
}

type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
	IsStudent    bool   `json:"student,omitempty"`
	IsTutor      bool   `json:"tutor,omitempty"`
	IsAdmin      bool   `json:"admin,omitempty"`
}

// GetUserClaims returns the JWT claims for usr.
// origIat is only needed when refreshing a token.
func GetUserClaims(usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	var oriat int64
	if len(origIat) > 0 {
		oriat = origIat[0]
	} else {
		oriat = now.Unix()
	}
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:   usr.ID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(core.Conf.Server.JWTExpirationDelta).Unix(),
		},
		OrigIssuedAt: oriat,
		Name:         usr.Name,
		Email:        usr.Email,
		IsStudent:    usr.IsStudent(),
		IsTutor:      usr.IsTutor(),
		IsAdmin:      usr.IsAdmin(),
	}
}

func GenerateToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(appJWTConfig.SigningKey)
	return signed, errors.Wrap(err, "signing token")
}

// authenticate checks a user's credentials and returns the user on success.
func authenticate(ctx echo.Context, email, password string, svc user.Service) (user.User, error) {
	usr, err := svc.GetByEmail(ctx.Request().Context(), email)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errAuthenticationFailed
		}
		return user.User{}, err
	}
	if err = usr.CheckPassword(password); err != nil {
		return user.User{}, errAuthenticationFailed
	}
	if !usr.Active() {
		return user.User{}, errAccountDeactivated
	}
	if usr, err = svc.SetLastLogin(ctx.Request().Context(), usr); err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	token, ok := ctx.Get(appJWTConfig.ContextKey).(*jwt.Token)
	if !ok {
		return Claims{}, errUnauthorized
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return Claims{}, errUnauthorized
	}
	return *claims, nil
}

// getContextUser loads the authenticated user, caching it on the context.
func getContextUser(ctx echo.Context, svc user.Service, clms ...Claims) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	var claims Claims
	var err error
	if len(clms) > 0 {
		claims = clms[0]
	} else if claims, err = getContextClaims(ctx); err != nil {
		return user.User{}, err
	}

	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errUnauthorized
		}
		return user.User{}, err
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

// refreshToken issues a new token as long as the original token's refresh window is still open.
func refreshToken(claims Claims, usr user.User) (string, error) {
	origIat := claims.OrigIssuedAt
	refreshExp := time.Unix(origIat, 0).Add(core.Conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(refreshExp) {
		return "", errRefreshExpired
	}
	return GenerateToken(GetUserClaims(usr, origIat))
}
