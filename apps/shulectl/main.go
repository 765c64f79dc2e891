package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/session"
	"github.com/trezcool/shule/core/token"
	logsvc "github.com/trezcool/shule/services/logger"
	"github.com/trezcool/shule/services/schoolapi"
	"github.com/trezcool/shule/storage/state"
)

// stateContextID scopes shared state backends to this CLI installation.
const stateContextID = "shulectl"

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "SHULE : ", log.LstdFlags)

	conf, err := core.NewConfig()
	errAndDie(err)
	appLog := logsvc.NewConsoleLogger(logger, conf.Debug)

	// set up state + credential persistence (one CLI config dir = one browser
	// context)
	repo, err := state.NewRepository(conf, stateContextID)
	errAndDie(err)
	jarPath := conf.State.FilePath
	if jarPath == "" {
		confDir, cErr := os.UserConfigDir()
		errAndDie(cErr)
		jarPath = filepath.Join(confDir, "shule", "cookies.json")
	} else {
		jarPath = filepath.Join(filepath.Dir(jarPath), "cookies.json")
	}
	jar, err := schoolapi.NewPersistentJar(jarPath, conf.Backend.BaseURL)
	errAndDie(err)

	// wire up the client core
	client := schoolapi.NewClientWithJar(conf, appLog, jar)
	store := session.NewStore(client, repo, appLog)
	coord := token.NewCoordinator(store.Renew, conf.RefreshInterval(), appLog)
	coord.OnTerminalFailure(store.ForceLogout)
	client.SetRefresher(coord)
	store.SetCoordinator(coord)

	// start CLI
	cli := commandLine{
		conf:   conf,
		client: client,
		store:  store,
		jar:    jar,
		out:    os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
