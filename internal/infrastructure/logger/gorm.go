package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultSlowQuery is the slow query threshold when none is configured
const DefaultSlowQuery = 200 * time.Millisecond

// GormConfig configures the GORM logger
type GormConfig struct {
	Level gormlogger.LogLevel
	// SlowQuery logs statements slower than this at warn; 0 uses DefaultSlowQuery
	SlowQuery time.Duration
	// LogNotFound logs gorm.ErrRecordNotFound as an error. Lookups for unknown
	// references are routine (webhooks, status polls), so it is off by default.
	LogNotFound bool
}

// GormLogger adapts zap to GORM. Statements run under a request context are
// logged through that request's logger, so they carry its request, user and
// business IDs.
type GormLogger struct {
	base *zap.Logger
	cfg  GormConfig
}

// NewGormLogger creates a GORM logger writing to log
func NewGormLogger(log *zap.Logger, cfg GormConfig) *GormLogger {
	if cfg.SlowQuery <= 0 {
		cfg.SlowQuery = DefaultSlowQuery
	}
	return &GormLogger{base: log.Named("gorm"), cfg: cfg}
}

// LogMode implements gormlogger.Interface
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.cfg.Level = level
	return &cp
}

// Info implements gormlogger.Interface
func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.cfg.Level >= gormlogger.Info {
		l.loggerFor(ctx).Sugar().Infof(msg, data...)
	}
}

// Warn implements gormlogger.Interface
func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.cfg.Level >= gormlogger.Warn {
		l.loggerFor(ctx).Sugar().Warnf(msg, data...)
	}
}

// Error implements gormlogger.Interface
func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.cfg.Level >= gormlogger.Error {
		l.loggerFor(ctx).Sugar().Errorf(msg, data...)
	}
}

// Trace implements gormlogger.Interface. Errors log at error, slow statements
// at warn and everything else at debug.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}
	failed := err != nil && (l.cfg.LogNotFound || !errors.Is(err, gormlogger.ErrRecordNotFound))
	elapsed := time.Since(begin)
	slow := elapsed > l.cfg.SlowQuery

	var msg string
	switch {
	case failed && l.cfg.Level >= gormlogger.Error:
		msg = "Query failed"
	case slow && l.cfg.Level >= gormlogger.Warn:
		msg = "Slow query"
	case l.cfg.Level >= gormlogger.Info:
		msg = "Query"
	default:
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Duration("elapsed", elapsed),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}

	log := l.loggerFor(ctx)
	switch msg {
	case "Query failed":
		log.Error(msg, append(fields, zap.Error(err))...)
	case "Slow query":
		log.Warn(msg, append(fields, zap.Duration("threshold", l.cfg.SlowQuery))...)
	default:
		log.Debug(msg, fields...)
	}
}

// loggerFor prefers the request-scoped logger carried by ctx
func (l *GormLogger) loggerFor(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if scoped, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
			return scoped.Named("gorm")
		}
	}
	return l.base
}

// MapGormLogLevel maps the application log level to a GORM level
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "warn":
		return gormlogger.Warn
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
