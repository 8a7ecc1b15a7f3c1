package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field keys shared by every package that logs about a day
const (
	KeyEnv  = "env"
	KeyDate = "date"
	KeyStep = "step"
)

const dateLayout = "2006-01-02"

// InitLogger initializes a zap logger with console and file outputs.
// The console shows Info and above; the file under logs/ keeps every entry
// as JSON tagged with env.
func InitLogger(env string) (*zap.Logger, error) {
	logger, _, err := initLogger(env, "logs", os.Stdout, time.Now())
	return logger, err
}

func initLogger(env, dir string, console zapcore.WriteSyncer, now time.Time) (*zap.Logger, string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create logs directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("rehab_%s_%s.log", env, now.Format("2006-01-02_15-04-05")))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open log file: %w", err)
	}

	return New(env, console, zapcore.AddSync(file)), path, nil
}

// New builds the tee behind InitLogger over the given writers
func New(env string, console, file zapcore.WriteSyncer) *zap.Logger {
	consoleConfig := zap.NewDevelopmentEncoderConfig()
	consoleConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleConfig.CallerKey = zapcore.OmitKey

	fileConfig := zap.NewProductionEncoderConfig()
	fileConfig.TimeKey = "timestamp"
	fileConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	// env is only useful once files from several environments are mixed
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(fileConfig), file, zapcore.DebugLevel).
		With([]zapcore.Field{zap.String(KeyEnv, env)})

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfig), console, zapcore.InfoLevel),
		fileCore,
	)

	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// ForDay tags every entry with the day being worked on
func ForDay(logger *zap.Logger, date time.Time) *zap.Logger {
	return logger.With(zap.String(KeyDate, date.Format(dateLayout)))
}

// ForStep tags every entry with the workflow step being run
func ForStep(logger *zap.Logger, step string) *zap.Logger {
	return logger.With(zap.String(KeyStep, step))
}
