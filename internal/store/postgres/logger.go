package postgres

import (
	"fmt"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"segment-cache/pkg/logger"
)

// gormWriter adapts our structured logger to gorm's logger.Writer interface
type gormWriter struct {
	logger *logger.Logger
}

// Printf implements the logger.Writer interface
func (w *gormWriter) Printf(format string, args ...interface{}) {
	w.logger.Infow(fmt.Sprintf(format, args...))
}

func newGormLogger(log *logger.Logger) gormlogger.Interface {
	return gormlogger.New(
		&gormWriter{logger: log},
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true, // A miss is a normal cache outcome
			Colorful:                  false,
		},
	)
}
