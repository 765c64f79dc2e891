package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	en_locale "github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	echoportal "github.com/trezcool/shule/apps/portal/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/session"
	logsvc "github.com/trezcool/shule/services/logger"
	metricsvc "github.com/trezcool/shule/services/metrics"
)

func main() {
	std := log.New(os.Stdout, "PORTAL : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	if err != nil {
		std.Fatalf("loading config: %v", err)
	}

	var logger core.Logger
	if conf.RollbarToken != "" && !conf.Debug {
		logger = logsvc.NewRollbarLogger(std, conf)
	} else {
		logger = logsvc.NewConsoleLogger(std, conf.Debug)
	}

	// set up validation
	en := en_locale.New()
	translator, _ := ut.New(en, en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	session.RegisterValidators(validate, translator)

	// set up metrics
	registry := prometheus.NewRegistry()
	metrics := metricsvc.New(registry)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	app := echoportal.NewServer(&echoportal.Options{
		Addr:       conf.Portal.Addr,
		Conf:       conf,
		Logger:     logger,
		Metrics:    metrics,
		Registry:   registry,
		Validate:   validate,
		Translator: translator,
		Shutdown:   shutdown,
	})

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("portal listening on " + conf.Portal.Addr)
		serverErrors <- app.Start()
	}()

	select {
	case err = <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", err)
		}
	case sig := <-shutdown:
		logger.Info("shutdown started", sig)
		ctx, cancel := context.WithTimeout(context.Background(), conf.Portal.ShutdownTimeout)
		defer cancel()
		if err = app.Stop(ctx); err != nil {
			logger.Error("graceful shutdown failed", err)
		}
	}
}
