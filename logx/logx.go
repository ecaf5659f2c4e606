package logx

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
)

const (
	defaultLogFile    = "./logs/custody.log"
	defaultMaxSizeMB  = 100
	defaultMaxAgeDays = 7
)

// FileConfig controls the rotating log file
type FileConfig struct {
	Filename   string `ini:"file"`
	MaxSizeMB  int    `ini:"max_size_mb"`
	MaxAgeDays int    `ini:"max_age_days"`
	Debug      bool   `ini:"debug"`
}

var (
	mu           sync.RWMutex
	logger       = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	debugEnabled = os.Getenv("LOG_DEBUG") != ""
	fileSink     *lumberjack.Logger
)

// FileConfigFromEnv reads LOGFILE, LOGFILE_MAX_SIZE_MB and LOGFILE_MAX_AGE_DAYS, falling back to defaults.
func FileConfigFromEnv() FileConfig {
	cfg := FileConfig{
		Filename:   defaultLogFile,
		MaxSizeMB:  defaultMaxSizeMB,
		MaxAgeDays: defaultMaxAgeDays,
	}
	if logFile := os.Getenv("LOGFILE"); logFile != "" {
		cfg.Filename = "./logs/" + logFile
	}
	if v, err := strconv.Atoi(os.Getenv("LOGFILE_MAX_SIZE_MB")); err == nil && v > 0 {
		cfg.MaxSizeMB = v
	}
	if v, err := strconv.Atoi(os.Getenv("LOGFILE_MAX_AGE_DAYS")); err == nil && v > 0 {
		cfg.MaxAgeDays = v
	}
	return cfg
}

// InitFileLogger redirects all categories to a rotating log file
func InitFileLogger(cfg FileConfig) {
	if cfg.Filename == "" {
		cfg.Filename = defaultLogFile
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = defaultMaxSizeMB
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = defaultMaxAgeDays
	}

	sink := &lumberjack.Logger{
		Filename: cfg.Filename,
		MaxSize:  cfg.MaxSizeMB,
		MaxAge:   cfg.MaxAgeDays,
	}

	mu.Lock()
	defer mu.Unlock()
	if fileSink != nil {
		_ = fileSink.Close()
	}
	fileSink = sink
	logger = log.New(sink, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	debugEnabled = debugEnabled || cfg.Debug
}

// SetOutput replaces the sink, mainly for tests
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds)
}

func printf(color, level, category string, content []interface{}) {
	message := fmt.Sprint(content...)
	coloredCategory := fmt.Sprintf("%s[%s][%s]%s", color, level, category, ColorReset)
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.Printf("%s: %s", coloredCategory, message)
}

func Info(category string, content ...interface{}) {
	printf(ColorGreen, "INFO", category, content)
}

func Error(category string, content ...interface{}) {
	printf(ColorRed, "ERROR", category, content)
}

func Warn(category string, content ...interface{}) {
	printf(ColorYellow, "WARN", category, content)
}

func Debug(category string, content ...interface{}) {
	mu.RLock()
	enabled := debugEnabled
	mu.RUnlock()
	if !enabled {
		return
	}
	printf(ColorBlue, "DEBUG", category, content)
}

// Errorf logs an error message and returns a formatted error
func Errorf(format string, args ...interface{}) error {
	err := fmt.Errorf(format, args...)
	Error("ERROR", err.Error())
	return err
}
