package zaplogger

import (
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger adapts a *zap.Logger to observability.Logger.
type Logger struct{ z *zap.Logger }

// Wrap binds fixed to every entry written through the returned logger. A nil zap logger discards output.
func Wrap(z *zap.Logger, fixed ...observability.Field) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	if len(fixed) > 0 {
		z = z.With(fields(fixed)...)
	}
	return &Logger{z: z}
}

func (l *Logger) With(fs ...observability.Field) observability.Logger {
	if len(fs) == 0 {
		return l
	}
	return &Logger{z: l.z.With(fields(fs)...)}
}

func (l *Logger) Debug(msg string, fs ...observability.Field) { l.write(zapcore.DebugLevel, msg, fs) }
func (l *Logger) Info(msg string, fs ...observability.Field)  { l.write(zapcore.InfoLevel, msg, fs) }
func (l *Logger) Warn(msg string, fs ...observability.Field)  { l.write(zapcore.WarnLevel, msg, fs) }
func (l *Logger) Error(msg string, fs ...observability.Field) { l.write(zapcore.ErrorLevel, msg, fs) }

// Sync flushes buffered entries.
func (l *Logger) Sync() error { return l.z.Sync() }

func (l *Logger) write(level zapcore.Level, msg string, fs []observability.Field) {
	if ce := l.z.Check(level, msg); ce != nil {
		ce.Write(fields(fs)...)
	}
}

func fields(fs []observability.Field) []zap.Field {
	out := make([]zap.Field, len(fs))
	for i, f := range fs {
		switch v := f.Value.(type) {
		case error:
			out[i] = zap.NamedError(f.Key, v)
		case string:
			out[i] = zap.String(f.Key, v)
		default:
			out[i] = zap.Any(f.Key, v)
		}
	}
	return out
}
