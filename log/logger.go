// Package log is the structured JSON logger shared by every component.
// Entries carry the batch id when a batch is known and a component name
// set with Named.
package log

import (
	"io"
	"maps"
	"slices"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/magnetmeta/types"
)

// Logger writes one JSON object per entry. Call fields are flattened
// into the entry in key order.
type Logger struct {
	zap *zap.Logger
}

// New returns a logger writing to w. Entries below level are dropped.
// A non-nil meta adds batch_id and total to every entry.
func New(w io.Writer, level zapcore.Level, meta *types.BatchMeta) *Logger {
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		NameKey:     "component",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
		EncodeName:  zapcore.FullNameEncoder,
	})
	z := zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level))
	if meta != nil {
		z = z.With(zap.String("batch_id", meta.BatchID), zap.Int("total", meta.Total))
	}
	return &Logger{zap: z}
}

// NewNopLogger discards everything.
func NewNopLogger() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// Named tags entries with a component name. Nested names join with dots.
func (l *Logger) Named(component string) *Logger {
	return &Logger{zap: l.zap.Named(component)}
}

func (l *Logger) Debug(msg string, fields map[string]any) { l.log(zapcore.DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields map[string]any) { l.log(zapcore.InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields map[string]any) { l.log(zapcore.WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields map[string]any) { l.log(zapcore.ErrorLevel, msg, fields) }

func (l *Logger) log(level zapcore.Level, msg string, fields map[string]any) {
	ce := l.zap.Check(level, msg)
	if ce == nil {
		return
	}
	zf := make([]zap.Field, 0, len(fields))
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		zf = append(zf, zap.Any(k, fields[k]))
	}
	ce.Write(zf...)
}

// Sync flushes buffered entries. Sync errors on terminals are ignored.
func (l *Logger) Sync() {
	_ = l.zap.Sync()
}
