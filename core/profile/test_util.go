package profile

import (
	"github.com/freetutor/freetutor/core"
	"github.com/freetutor/freetutor/core/user"
)

// NewServiceMock behaves like the real Service except that emails are sent
// synchronously so tests can assert on them.
func NewServiceMock(repo Repository, usrSvc user.Service, mailSvc core.EmailService) Service {
	return &service{repo: repo, usrSvc: usrSvc, mailSvc: mailSvc, sync: true}
}
