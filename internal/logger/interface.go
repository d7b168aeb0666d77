package logger

// Logger defines the interface for logging operations.
// Components receive one by injection so tests can pass Nop().
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	With(component string) Logger
}
