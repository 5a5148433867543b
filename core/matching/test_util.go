package matching

import (
	"github.com/freetutor/freetutor/core"
	"github.com/freetutor/freetutor/core/profile"
	"github.com/freetutor/freetutor/core/user"
)

// NewServiceMock behaves like the real Service except that emails are sent
// synchronously so tests can assert on them.
func NewServiceMock(repo Repository, profSvc profile.Service, usrSvc user.Service, mailSvc core.EmailService) Service {
	return &service{repo: repo, profSvc: profSvc, usrSvc: usrSvc, mailSvc: mailSvc, sync: true}
}
