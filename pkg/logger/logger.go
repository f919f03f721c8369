package logger

import (
	"fmt"

	"go.uber.org/zap"
)

var base *zap.Logger

var serviceName = "default"

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

// Init собирает production-логгер. Вызывается один раз из main.
func Init() error {
	l, err := zap.NewProduction(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	base = l
	return nil
}

func log() *zap.Logger {
	if base == nil {
		// без Init (например в тестах) молча глотаем вывод
		return zap.NewNop()
	}
	return base.With(zap.String("service", serviceName))
}

func Info(format string, args ...interface{}) {
	log().Info(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	log().Warn(fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	log().Error(fmt.Sprintf(format, args...))
}

func Fatal(format string, args ...interface{}) {
	log().Fatal(fmt.Sprintf(format, args...))
}

// Sync сбрасывает буферы при остановке.
func Sync() {
	if base != nil {
		_ = base.Sync()
	}
}
