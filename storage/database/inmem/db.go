// Package inmemdb backs the repositories with in-process maps. Tests use it
// to exercise services and handlers without PostgreSQL.
package inmemdb

import (
	"sync"

	"github.com/intellibus/aimasterclass/core/course"
	"github.com/intellibus/aimasterclass/core/discount"
	"github.com/intellibus/aimasterclass/core/notification"
	"github.com/intellibus/aimasterclass/core/user"
)

type DB struct {
	mutex         sync.RWMutex
	users         map[string]*user.User
	modules       map[string]*course.Module
	progress      map[string]*course.Progress // keyed user_id/module_id
	events        []course.VideoEvent
	notifications map[string]*notification.Notification
	discounts     map[string]*discount.Request
}

func NewDB() *DB {
	return &DB{
		users:         make(map[string]*user.User),
		modules:       make(map[string]*course.Module),
		progress:      make(map[string]*course.Progress),
		notifications: make(map[string]*notification.Notification),
		discounts:     make(map[string]*discount.Request),
	}
}

func progressKey(userID, moduleID string) string {
	return userID + "/" + moduleID
}
