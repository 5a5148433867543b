package main

import (
	"context"

	"github.com/freetutor/freetutor/core"
	"github.com/freetutor/freetutor/core/user"
)

// createAdmin updates or creates an admin user.User
func (cli *commandLine) createAdmin(name, email, pwd string) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	if err != nil {
		if err != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Name:  core.CleanString(name),
			Email: email,
		}
	}
	usr.Role = user.RoleAdmin
	usr.SetActive(true)
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	if _, err := cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}
