package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/intellibus/aimasterclass/apps/api/echo"
	"github.com/intellibus/aimasterclass/core"
	"github.com/intellibus/aimasterclass/core/admin"
	"github.com/intellibus/aimasterclass/core/course"
	"github.com/intellibus/aimasterclass/core/discount"
	"github.com/intellibus/aimasterclass/core/notification"
	"github.com/intellibus/aimasterclass/core/user"
	analyticssvc "github.com/intellibus/aimasterclass/services/analytics"
	emailsvc "github.com/intellibus/aimasterclass/services/email"
	logsvc "github.com/intellibus/aimasterclass/services/logger"
	ratelimitsvc "github.com/intellibus/aimasterclass/services/ratelimit"
	"github.com/intellibus/aimasterclass/storage/database"
	sqlxrepos "github.com/intellibus/aimasterclass/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	var analytics core.Analytics
	if conf.AnalyticsEnabled() {
		phSvc, phErr := analyticssvc.NewPostHogService(conf, logger)
		if phErr != nil {
			logger.Fatal(fmt.Sprintf("setting up analytics: %v", phErr), phErr)
		}
		defer func() {
			if err = phSvc.Close(); err != nil {
				logger.Error(fmt.Sprintf("closing analytics client: %v", err), err)
			}
		}()
		analytics = phSvc
	} else {
		analytics = analyticssvc.NewNoopService()
	}

	var limiter core.RateLimiter
	if conf.RedisEnabled() {
		limiter = ratelimitsvc.NewRedisLimiter(conf, logger)
	} else {
		limiter = ratelimitsvc.NewNoopLimiter()
	}

	userRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(db, userRepo, mailSvc, analytics, limiter, logger, conf)
	notifSvc := notification.NewService(db, sqlxrepos.NewNotificationRepository(db), userRepo, mailSvc, logger, conf)
	courseSvc := course.NewService(db, sqlxrepos.NewCourseRepository(db), notifSvc, logger)
	discountSvc := discount.NewService(sqlxrepos.NewDiscountRepository(db), notifSvc, logger)
	adminSvc := admin.NewService(sqlxrepos.NewAdminRepository(db), logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	// =========================================================================
	// Start Notification Outbox

	outboxCtx, stopOutbox := context.WithCancel(context.Background())
	defer stopOutbox()

	outbox := notification.NewOutbox(notifSvc)
	go outbox.Run(outboxCtx)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err = http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	server := echoapi.NewServer(&echoapi.Options{
		Address:         conf.Server.Address(),
		Conf:            conf,
		Logger:          logger,
		Validate:        validate,
		Translator:      translator,
		UserSvc:         usrSvc,
		CourseSvc:       courseSvc,
		NotificationSvc: notifSvc,
		DiscountSvc:     discountSvc,
		AdminSvc:        adminSvc,
		Outbox:          outbox,
		SignalShutdown:  func() { shutdown <- syscall.SIGTERM },
	})

	go func() {
		serverErrors <- server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-serverErrors:
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		stopOutbox()

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err = server.Stop(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
