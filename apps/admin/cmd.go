package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/intellibus/aimasterclass/core/notification"
	"github.com/intellibus/aimasterclass/core/user"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db       *sqlx.DB
	usrRepo  user.Repository
	usrSvc   *user.Service
	notifSvc *notification.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS...] - run a goose migration command (up, down, status, ...)")
	fmt.Println("  addadmin -email EMAIL - grant admin access to an existing account")
	fmt.Println("  sendreminders [-days DAYS] - email users inactive for DAYS days (default 3)")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addAdminCmd := flag.NewFlagSet("addadmin", flag.ExitOnError)
	addAdminEmail := addAdminCmd.String("email", "", "The account's email address.")

	sendRemindersCmd := flag.NewFlagSet("sendreminders", flag.ExitOnError)
	sendRemindersDays := sendRemindersCmd.Int("days", 3, "Days of inactivity before a reminder is due.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "addadmin":
		if err := addAdminCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addAdminEmail == "" {
			addAdminCmd.Usage()
			return errHelp
		}
		return cli.addAdmin(*addAdminEmail)
	case "sendreminders":
		if err := sendRemindersCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *sendRemindersDays <= 0 {
			sendRemindersCmd.Usage()
			return errHelp
		}
		return cli.sendReminders(*sendRemindersDays)
	default:
		cli.printUsage()
		return errHelp
	}
}
