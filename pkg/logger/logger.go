// Package logger is a tiny leveled logger for the warn-and-degrade paths:
// remote capability failures are logged here and never surfaced as errors.
package logger

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync/atomic"
)

type Level int32

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var currentLevel atomic.Int32

func init() {
	currentLevel.Store(int32(INFO))
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
}

func SetLevel(level Level) {
	currentLevel.Store(int32(level))
}

func enabled(level Level) bool {
	return int32(level) >= currentLevel.Load()
}

func Debugf(format string, args ...any) { logf(DEBUG, "DEBUG", format, args...) }
func Infof(format string, args ...any)  { logf(INFO, "INFO", format, args...) }
func Warnf(format string, args ...any)  { logf(WARN, "WARN", format, args...) }
func Errorf(format string, args ...any) { logf(ERROR, "ERROR", format, args...) }

func logf(level Level, tag, format string, args ...any) {
	if !enabled(level) {
		return
	}
	log.Printf("[%s] %s", tag, fmt.Sprintf(format, args...))
}

// InfoCF logs at INFO with a component tag and sorted key=value fields.
func InfoCF(component, msg string, fields map[string]any) { logCF(INFO, "INFO", component, msg, fields) }

// WarnCF logs at WARN with a component tag and sorted key=value fields.
func WarnCF(component, msg string, fields map[string]any) { logCF(WARN, "WARN", component, msg, fields) }

// ErrorCF logs at ERROR with a component tag and sorted key=value fields.
func ErrorCF(component, msg string, fields map[string]any) {
	logCF(ERROR, "ERROR", component, msg, fields)
}

func logCF(level Level, tag, component, msg string, fields map[string]any) {
	if !enabled(level) {
		return
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	suffix := ""
	if len(parts) > 0 {
		suffix = " " + strings.Join(parts, " ")
	}
	log.Printf("[%s] [%s] %s%s", tag, component, msg, suffix)
}
