package core

// Logger is implemented by the application's logging services.
// Implementations may inspect args for contextual values (errors, the
// acting user) in addition to printing them.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
