package logger

import (
	"fmt"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// ANSI colors for console output
const (
	colorReset  = "\x1b[0m"
	colorDim    = "\x1b[2m"
	colorCyan   = "\x1b[36m"
	colorYellow = "\x1b[33m"
	colorRed    = "\x1b[31m"
)

var bufPool = buffer.NewPool()

// consoleEncoder renders compact, human-readable log lines:
//
//	15:04:05 level component  message  key=value key=value
//
// Structured fields are appended as dim key=value pairs so they stay
// readable without dominating the line.
type consoleEncoder struct {
	zapcore.Encoder
	pool buffer.Pool
}

func newConsoleEncoder() zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "ts",
		NameKey:        "name",
		EncodeTime:     zapcore.TimeEncoderOfLayout("15:04:05"),
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	return &consoleEncoder{
		Encoder: zapcore.NewConsoleEncoder(cfg),
		pool:    bufPool,
	}
}

func (e *consoleEncoder) Clone() zapcore.Encoder {
	return &consoleEncoder{Encoder: e.Encoder.Clone(), pool: e.pool}
}

func (e *consoleEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	line := e.pool.Get()

	line.AppendString(colorDim)
	line.AppendString(entry.Time.Format("15:04:05"))
	line.AppendString(colorReset)
	line.AppendByte(' ')

	line.AppendString(levelColor(entry.Level))
	line.AppendString(entry.Level.String())
	line.AppendString(colorReset)

	if entry.LoggerName != "" {
		line.AppendByte(' ')
		line.AppendString(colorCyan)
		line.AppendString(entry.LoggerName)
		line.AppendString(colorReset)
	}

	line.AppendString("  ")
	line.AppendString(entry.Message)

	for _, f := range fields {
		line.AppendString("  ")
		line.AppendString(colorDim)
		line.AppendString(f.Key)
		line.AppendByte('=')
		line.AppendString(fieldValue(f))
		line.AppendString(colorReset)
	}

	line.AppendByte('\n')
	return line, nil
}

func levelColor(level zapcore.Level) string {
	switch {
	case level >= zapcore.ErrorLevel:
		return colorRed
	case level == zapcore.WarnLevel:
		return colorYellow
	default:
		return colorDim
	}
}

// fieldValue renders a zap field as a plain string without reflection
// for the common cases.
func fieldValue(f zapcore.Field) string {
	switch f.Type {
	case zapcore.StringType:
		return f.String
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type:
		return fmt.Sprintf("%d", f.Integer)
	case zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return fmt.Sprintf("%d", uint64(f.Integer))
	case zapcore.BoolType:
		return fmt.Sprintf("%t", f.Integer == 1)
	case zapcore.DurationType, zapcore.ErrorType:
		return fmt.Sprintf("%v", f.Interface)
	default:
		if f.Interface != nil {
			return fmt.Sprintf("%v", f.Interface)
		}
		return f.String
	}
}
