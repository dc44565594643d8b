package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Файлы логов. JSON-файл читает терминальный UI.
const (
	readableLogFile = "app.log"
	JSONLogFile     = "app.json.log"
)

// Глобальный экземпляр логгера
var (
	globalLogger *zap.Logger
	once         sync.Once
)

// Init инициализирует глобальный логгер
func Init() {
	once.Do(func() {
		globalLogger = newLogger()
	})

	// Начинаем JSON-лог заново при каждом запуске, иначе UI покажет старые записи
	if err := os.Truncate(JSONLogFile, 0); err != nil && !os.IsNotExist(err) {
		globalLogger.Warn("Не удалось очистить JSON-лог", zap.Error(err))
	}
}

// GetLogger возвращает глобальный экземпляр логгера
func GetLogger() *zap.Logger {
	if globalLogger == nil {
		Init()
	}
	return globalLogger
}

// Вспомогательные функции для удобства использования
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// newLogger создает новый экземпляр логгера
func newLogger() *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("02.01.2006 - 15:04:05.000000000Z07:00")
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	readableFileEncoder := zapcore.NewConsoleEncoder(encoderConfig)
	jsonFileEncoder := zapcore.NewJSONEncoder(encoderConfig)

	readableFile, err := os.OpenFile(readableLogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		panic(err)
	}
	jsonFile, err := os.OpenFile(JSONLogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		panic(err)
	}

	level := zapcore.DebugLevel

	// Tee: читаемый файл + JSON файл. В stdout не пишем, им владеет UI.
	core := zapcore.NewTee(
		zapcore.NewCore(readableFileEncoder, zapcore.AddSync(readableFile), level),
		zapcore.NewCore(jsonFileEncoder, zapcore.AddSync(jsonFile), level),
	)

	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}
