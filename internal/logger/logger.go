package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bluegreen-watch/internal/models"
)

var (
	mu           sync.RWMutex
	activeLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime}).
			Level(zerolog.InfoLevel).With().Timestamp().Logger()
	logFile *os.File
)

// InitLogger 初始化日志系统。
func InitLogger(config *models.Config) error {
	output, file, err := buildLogWriter(config.LogFile, config.LogFormat)
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(config.LogLevel)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	mu.Lock()
	defer mu.Unlock()
	closeFileLocked()
	activeLogger = zerolog.New(output).Level(level).With().Timestamp().Logger()
	logFile = file
	return nil
}

// SetOutput 替换日志输出 主要用于测试静默日志。
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	activeLogger = activeLogger.Output(w)
}

// Close 关闭日志文件。
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeFileLocked()
}

func closeFileLocked() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

func buildLogWriter(path, format string) (io.Writer, *os.File, error) {
	var writer io.Writer = os.Stdout
	if !strings.EqualFold(format, "json") {
		writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime}
	}
	if path == "" {
		return writer, nil, nil
	}

	logDir := filepath.Dir(path)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("创建日志目录失败: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("打开日志文件失败: %w", err)
	}

	// 文件中始终写入 JSON 便于采集
	return zerolog.MultiLevelWriter(writer, file), file, nil
}

// Info 记录信息日志。
func Info(format string, v ...interface{}) {
	l := current()
	l.Info().Msgf(format, v...)
}

// Error 记录错误日志。
func Error(format string, v ...interface{}) {
	l := current()
	l.Error().Msgf(format, v...)
}

// Warn 记录警告日志。
func Warn(format string, v ...interface{}) {
	l := current()
	l.Warn().Msgf(format, v...)
}

// Debug 记录调试日志。
func Debug(format string, v ...interface{}) {
	l := current()
	l.Debug().Msgf(format, v...)
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return activeLogger
}
