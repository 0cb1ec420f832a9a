package logger

// NullLogger discards everything. It is the engine default so library users
// opt in to logging explicitly.
type NullLogger struct{}

func NewNullLogger() *NullLogger { return &NullLogger{} }

func (NullLogger) Debug(string, ...any) {}
func (NullLogger) Info(string, ...any)  {}
func (NullLogger) Error(string, ...any) {}
