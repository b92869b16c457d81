package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var (
	mu          sync.Mutex
	globalBase  *zap.Logger
	globalSugar *zap.SugaredLogger
)

// Init builds the global zap logger. env is "production"/"prod" or anything
// else for development. Stdlib log output is redirected into zap so stray
// log.Printf calls from dependencies are captured too.
func Init(env string) (*zap.Logger, error) {
	mu.Lock()
	defer mu.Unlock()
	if globalBase != nil {
		return globalBase, nil
	}

	var cfg zap.Config
	if strings.EqualFold(env, "prod") || strings.EqualFold(env, "production") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	zap.ReplaceGlobals(base)
	_ = zap.RedirectStdLog(base)

	globalBase = base
	globalSugar = base.Sugar()
	return globalBase, nil
}

// Base returns the global logger, initializing a development logger on
// first use if Init was never called.
func Base() *zap.Logger {
	if globalBase == nil {
		if _, err := Init(os.Getenv("LOG_ENV")); err != nil {
			mu.Lock()
			globalBase, _ = zap.NewDevelopment()
			globalSugar = globalBase.Sugar()
			mu.Unlock()
		}
	}
	return globalBase
}

// L returns the global sugared logger.
func L() *zap.SugaredLogger {
	Base()
	return globalSugar
}

// Sync flushes buffered entries. Called on shutdown.
func Sync() {
	if globalBase != nil {
		_ = globalBase.Sync()
	}
}

// GORMWriter adapts the global logger to gorm's logger.Writer interface so
// slow-query and error output from gorm lands in zap.
type GORMWriter struct{}

// Printf implements gorm.io/gorm/logger.Writer.
func (w GORMWriter) Printf(format string, v ...interface{}) {
	msg := strings.TrimRight(fmt.Sprintf(format, v...), "\r\n")
	Base().Warn(msg)
}

// NewGORMWriter returns a writer adapter for gorm.
func NewGORMWriter() GORMWriter {
	return GORMWriter{}
}
