package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/session"
	"github.com/trezcool/shule/core/token"
	"github.com/trezcool/shule/services/schoolapi"
)

func (cli *commandLine) login(ctx context.Context, email, password string) error {
	creds := session.Credentials{Email: email, Password: password}
	if _, err := cli.store.Login(ctx, creds); err != nil {
		switch errors.Cause(err) {
		case schoolapi.ErrInvalidCredentials:
			return errors.New("invalid email or password")
		default:
			if schoolapi.IsNetworkError(err) {
				return errors.New("backend unreachable, check your connection")
			}
			return err
		}
	}

	sess := cli.store.Session()
	fmt.Fprintf(cli.out, "logged in as %s\n", sess.User.Email)
	if sess.NeedsRoleSelection() {
		fmt.Fprintf(cli.out, "you hold several roles (%s); pick one with: role -set ROLE\n",
			strings.Join(sess.User.Roles, ", "))
	}
	return nil
}

func (cli *commandLine) whoami(ctx context.Context) error {
	cli.store.CheckAuth(ctx)
	sess := cli.store.Session()
	if !sess.IsAuthenticated {
		fmt.Fprintln(cli.out, "not logged in")
		return nil
	}

	fmt.Fprintf(cli.out, "user:   %s <%s>\n", sess.User.Name, sess.User.Email)
	fmt.Fprintf(cli.out, "roles:  %s\n", strings.Join(sess.User.Roles, ", "))
	if sess.SelectedRole != "" {
		fmt.Fprintf(cli.out, "active: %s (%s)\n", sess.SelectedRole, session.RoleHome(sess.SelectedRole))
	} else if sess.NeedsRoleSelection() {
		fmt.Fprintln(cli.out, "active: none; pick one with: role -set ROLE")
	}
	if access := cli.client.Cookie(cli.conf.Portal.AccessCookie); access != "" {
		if exp, err := token.PeekExpiry(access); err == nil {
			fmt.Fprintf(cli.out, "access: expires %s (in %s)\n",
				exp.UTC().Format(time.RFC3339), time.Until(exp).Round(time.Second))
		}
	}
	return nil
}

func (cli *commandLine) selectRole(ctx context.Context, role string) error {
	if err := cli.store.SetSelectedRole(ctx, role); err != nil {
		if _, ok := errors.Cause(err).(*core.ValidationError); ok {
			return errors.Errorf("role %q is not assigned to you", role)
		}
		return err
	}
	fmt.Fprintf(cli.out, "active role set to %s (%s)\n", role, session.RoleHome(role))
	return nil
}
