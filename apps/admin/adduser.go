package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core/user"
)

// addUser creates an active user. It goes through signup validation, password policy included.
func (cli *commandLine) addUser(uname, email, pwd, role string, isStaff bool) error {
	ctx := context.Background()
	nu := user.NewUser{
		Username:        uname,
		Email:           email,
		Role:            role,
		Password:        pwd,
		PasswordConfirm: pwd,
		IsStaff:         isStaff,
	}
	if err := nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
		return err
	}
	if _, err := cli.usrSvc.Create(ctx, nu); err != nil {
		return errors.Wrap(err, "creating user")
	}
	return nil
}
