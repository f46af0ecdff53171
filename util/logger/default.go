package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	defaultLogger = NewLogger("undelpart", zap.InfoLevel).WithOptions(zap.AddCallerSkip(1))
)

// SetupDefaultLogger 替换包级默认日志器.
func SetupDefaultLogger(l *zap.SugaredLogger) {
	defaultLogger = l.WithOptions(zap.AddCallerSkip(1))
}

// Default 返回包级默认日志器, 供未注入日志器的组件使用.
func Default() *zap.SugaredLogger {
	return defaultLogger.WithOptions(zap.AddCallerSkip(-1))
}

// Enabled 若默认日志器会输出lvl级别的日志, 则返回true.
func Enabled(lvl zapcore.Level) bool {
	return defaultLogger.Desugar().Core().Enabled(lvl)
}

func Debugf(template string, args ...interface{}) {
	defaultLogger.Debugf(template, args...)
}
