package main

import (
	"log"
	"os"

	"github.com/intellibus/aimasterclass/core"
	"github.com/intellibus/aimasterclass/core/notification"
	"github.com/intellibus/aimasterclass/core/user"
	analyticssvc "github.com/intellibus/aimasterclass/services/analytics"
	emailsvc "github.com/intellibus/aimasterclass/services/email"
	logsvc "github.com/intellibus/aimasterclass/services/logger"
	ratelimitsvc "github.com/intellibus/aimasterclass/services/ratelimit"
	"github.com/intellibus/aimasterclass/storage/database"
	sqlxrepos "github.com/intellibus/aimasterclass/storage/database/sqlx"
)

var std = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(std, conf)
	logger.Enable(false) // local tool, no error reporting

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	core.ParseEmailTemplates(conf, logger)

	userRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(db, userRepo, mailSvc, analyticssvc.NewNoopService(), ratelimitsvc.NewNoopLimiter(), logger, conf)
	notifSvc := notification.NewService(db, sqlxrepos.NewNotificationRepository(db), userRepo, mailSvc, logger, conf)

	// start CLI
	cli := commandLine{
		db:       db,
		usrRepo:  userRepo,
		usrSvc:   usrSvc,
		notifSvc: notifSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			std.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		std.Fatal(err)
	}
}
