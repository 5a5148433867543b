package user

import (
	"context"

	"github.com/freetutor/freetutor/core"
)

type serviceMock struct {
	service
}

var _ Service = (*serviceMock)(nil)

// NewServiceMock behaves like the real Service except that emails are sent
// synchronously so tests can assert on them.
func NewServiceMock(repo Repository, mailSvc core.EmailService) Service {
	return &serviceMock{service{repo: repo, mailSvc: mailSvc}}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	svc.sendPasswordResetMail(usr)
	return nil
}
