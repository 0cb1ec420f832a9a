package logger

import (
	"fmt"

	phlog "github.com/oarkflow/log"
)

// PhusluLogger emits through the phuslu-style log package.
type PhusluLogger struct{}

func NewPhusluLogger() *PhusluLogger { return &PhusluLogger{} }

func (PhusluLogger) Debug(msg string, keyvals ...any) { emit(phlog.Debug(), msg, keyvals) }
func (PhusluLogger) Info(msg string, keyvals ...any)  { emit(phlog.Info(), msg, keyvals) }
func (PhusluLogger) Error(msg string, keyvals ...any) { emit(phlog.Error(), msg, keyvals) }

func emit(b *phlog.Entry, msg string, keyvals []any) {
	for i := 0; i+1 < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		switch v := keyvals[i+1].(type) {
		case string:
			b = b.Str(key, v)
		case bool:
			b = b.Bool(key, v)
		case int:
			b = b.Int(key, v)
		default:
			b = b.Any(key, v)
		}
	}
	b.Msg(msg)
}
