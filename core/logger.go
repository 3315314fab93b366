package core

// Logger is the app-wide logger. Besides the message, implementations accept errors,
// map[string]interface{} extras and the current user.User as args.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
