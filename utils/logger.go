/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timestampFormat = "2006-01-02 15:04:05.000"

type Logger = logrus.Logger

// FileLogConfig controls the rolling log file shared by all named loggers.
type FileLogConfig struct {
	Enabled    bool
	Directory  string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	JSON       bool
}

var (
	loggerRegistryMu sync.RWMutex
	loggerRegistry   = map[string]*logrus.Logger{}

	configMu      sync.RWMutex
	defaultLevel  = ParseLogLevel(EnvDefaultString("LOG_LEVEL", "info"))
	consoleJSON   = strings.EqualFold(EnvDefaultString("CONSOLE_LOG_FORMAT", "text"), "json")
	consoleWriter io.Writer = os.Stdout
	fileLog       = FileLogConfig{
		Enabled:    EnvDefaultBool("FILE_LOG_ENABLED", false),
		Directory:  EnvDefaultString("FILE_LOG_DIR", "logs"),
		MaxSizeMB:  20,
		MaxBackups: 10,
		MaxAgeDays: 30,
		Compress:   true,
		JSON:       strings.EqualFold(EnvDefaultString("FILE_LOG_FORMAT", "text"), "json"),
	}
)

// ConfigureFileLog sets up rolling file output for loggers created afterwards.
func ConfigureFileLog(cfg FileLogConfig) {
	configMu.Lock()
	defer configMu.Unlock()
	if cfg.Directory == "" {
		cfg.Directory = "logs"
	}
	fileLog = cfg
}

// ConfigureConsoleLogFormat switches console output between "text" and "json".
func ConfigureConsoleLogFormat(format string) {
	configMu.Lock()
	defer configMu.Unlock()
	consoleJSON = strings.EqualFold(strings.TrimSpace(format), "json")
}

// ConfigureConsoleOutput redirects console output, mostly for tests.
func ConfigureConsoleOutput(w io.Writer) {
	configMu.Lock()
	defer configMu.Unlock()
	consoleWriter = w
}

func ParseLogLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "info", "":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

func RegisterLogger(name string, l *logrus.Logger) {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	loggerRegistry[name] = l
}

// SetLoggerLevel changes the level of a named logger. It reports false when
// no logger with that name exists.
func SetLoggerLevel(name string, lvlStr string) bool {
	loggerRegistryMu.RLock()
	lg, ok := loggerRegistry[name]
	loggerRegistryMu.RUnlock()
	if !ok {
		return false
	}
	lg.SetLevel(ParseLogLevel(lvlStr))
	return true
}

// ConfigureLogLevel sets the level of every registered logger and of
// loggers created afterwards.
func ConfigureLogLevel(levelStr string) {
	lvl := ParseLogLevel(levelStr)
	configMu.Lock()
	defaultLevel = lvl
	configMu.Unlock()

	loggerRegistryMu.RLock()
	defer loggerRegistryMu.RUnlock()
	for _, lg := range loggerRegistry {
		lg.SetLevel(lvl)
	}
}

// NewLogger returns a named logrus logger writing to the console and, when
// file logging is enabled, to a rolling file named after the logger.
func NewLogger(name string) *logrus.Logger {
	configMu.RLock()
	level, asJSON, out, fileCfg := defaultLevel, consoleJSON, consoleWriter, fileLog
	configMu.RUnlock()

	l := logrus.New()
	l.SetLevel(level)
	l.SetReportCaller(true)
	l.SetOutput(out)
	if asJSON {
		l.SetFormatter(&JSONLogFormatter{LoggerName: name})
	} else {
		l.SetFormatter(&Log4jColorFormatter{LoggerName: name, NameWidth: 10, Color: true})
	}
	if fileCfg.Enabled {
		l.AddHook(newFileHook(name, fileCfg))
	}
	RegisterLogger(name, l)
	return l
}

// fileHook writes every entry to a lumberjack rolling file.
type fileHook struct {
	writer    io.Writer
	formatter logrus.Formatter
}

func newFileHook(name string, cfg FileLogConfig) *fileHook {
	var formatter logrus.Formatter = &Log4jColorFormatter{LoggerName: name, NameWidth: 10}
	if cfg.JSON {
		formatter = &JSONLogFormatter{LoggerName: name}
	}
	return &fileHook{
		writer: &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Directory, strings.ToLower(name)+".log"),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
		formatter: formatter,
	}
}

func (h *fileHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *fileHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(b)
	return err
}

// Log4jColorFormatter renders
// "time LEVEL pid --- [name] file:line : message key=value ...".
type Log4jColorFormatter struct {
	LoggerName string
	NameWidth  int
	Color      bool
}

var levelColors = map[logrus.Level]*color.Color{
	logrus.PanicLevel: color.New(color.FgRed),
	logrus.FatalLevel: color.New(color.FgRed),
	logrus.ErrorLevel: color.New(color.FgRed),
	logrus.WarnLevel:  color.New(color.FgYellow),
	logrus.InfoLevel:  color.New(color.FgGreen),
	logrus.DebugLevel: color.New(color.FgBlue),
	logrus.TraceLevel: color.New(color.FgMagenta),
}

func (f *Log4jColorFormatter) paint(c *color.Color, s string) string {
	if !f.Color || c == nil {
		return s
	}
	return c.Sprint(s)
}

func (f *Log4jColorFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	b.WriteString(entry.Time.Format(timestampFormat))
	b.WriteByte(' ')
	b.WriteString(f.paint(levelColors[entry.Level], fmt.Sprintf("%7s", strings.ToUpper(entry.Level.String()))))
	b.WriteByte(' ')
	b.WriteString(f.paint(color.New(color.FgMagenta), fmt.Sprintf("%-6d", os.Getpid())))
	b.WriteString(" --- ")
	b.WriteString(f.paint(color.New(color.FgCyan), fmt.Sprintf("[%*s]", f.NameWidth, limitRunes(f.LoggerName, f.NameWidth))))
	if entry.Caller != nil {
		b.WriteByte(' ')
		b.WriteString(f.paint(color.New(color.Faint), callerString(entry)))
	}
	b.WriteString(" : ")
	b.WriteString(entry.Message)
	for _, k := range sortedKeys(entry.Data) {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

type JSONLogFormatter struct {
	LoggerName string
}

func (f *JSONLogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	type jsonLogRecord struct {
		Time    string                 `json:"time"`
		Level   string                 `json:"level"`
		Logger  string                 `json:"logger"`
		Caller  string                 `json:"caller,omitempty"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields,omitempty"`
	}
	rec := jsonLogRecord{
		Time:    entry.Time.Format(timestampFormat),
		Level:   entry.Level.String(),
		Logger:  f.LoggerName,
		Message: entry.Message,
	}
	if entry.Caller != nil {
		rec.Caller = callerString(entry)
	}
	if len(entry.Data) > 0 {
		rec.Fields = make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			rec.Fields[k] = v
		}
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func callerString(entry *logrus.Entry) string {
	dir := filepath.Base(filepath.Dir(entry.Caller.File))
	return fmt.Sprintf("%s/%s:%d", dir, filepath.Base(entry.Caller.File), entry.Caller.Line)
}

func sortedKeys(data logrus.Fields) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func limitRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func EnvDefaultString(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return b
	}
	return def
}
