package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/session"
	"github.com/trezcool/shule/services/schoolapi"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf   *core.Config
	client *schoolapi.Client
	store  *session.Store
	jar    *schoolapi.PersistentJar
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  login -email EMAIL       - authenticate; the password will be prompted")
	fmt.Fprintln(cli.out, "  whoami                   - show the current session")
	fmt.Fprintln(cli.out, "  role -set ROLE | -clear  - select or clear the active role")
	fmt.Fprintln(cli.out, "  watch                    - keep the session fresh until interrupted")
	fmt.Fprintln(cli.out, "  logout                   - end the current session")
	fmt.Fprintln(cli.out, "  logoutall                - end all of the user's sessions")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	ctx := context.Background()
	cli.store.Hydrate(ctx)
	cli.client.SetClientID(cli.store.ClientID())

	loginCmd := flag.NewFlagSet("login", flag.ExitOnError)
	loginEmail := loginCmd.String("email", "", "The user's email. The password will be prompted next.")

	roleCmd := flag.NewFlagSet("role", flag.ExitOnError)
	roleSet := roleCmd.String("set", "", "The role to activate.")
	roleClear := roleCmd.Bool("clear", false, "Clear the active role.")

	switch args[1] {
	case "login":
		if err := loginCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *loginEmail == "" {
			loginCmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			loginCmd.Usage()
			return errHelp
		}
		return cli.login(ctx, *loginEmail, string(pwd))
	case "whoami":
		return cli.whoami(ctx)
	case "role":
		if err := roleCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *roleClear {
			cli.store.ClearSelectedRole(ctx)
			fmt.Fprintln(cli.out, "active role cleared")
			return nil
		}
		if *roleSet == "" {
			roleCmd.Usage()
			return errHelp
		}
		return cli.selectRole(ctx, *roleSet)
	case "watch":
		return cli.watch(ctx)
	case "logout":
		cli.store.Logout(ctx)
		cli.jar.Clear()
		fmt.Fprintln(cli.out, "logged out")
		return nil
	case "logoutall":
		cli.store.LogoutAll(ctx)
		cli.jar.Clear()
		fmt.Fprintln(cli.out, "logged out everywhere")
		return nil
	default:
		cli.printUsage()
		return errHelp
	}
}

// watch validates the session and then stays resident so the proactive
// refresh timer keeps the credentials fresh, until interrupted.
func (cli *commandLine) watch(ctx context.Context) error {
	cli.store.CheckAuth(ctx)
	sess := cli.store.Session()
	if !sess.IsAuthenticated {
		return errors.New("not logged in")
	}
	fmt.Fprintf(cli.out, "session active for %s; refreshing every %s (Ctrl+C to stop)\n",
		sess.User.Email, cli.conf.RefreshInterval())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cli.store.Logout(ctx)
	cli.jar.Clear()
	return nil
}
