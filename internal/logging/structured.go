package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
)

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp string         `json:"ts"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	FileID    string         `json:"file,omitempty"`
	Message   string         `json:"msg"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// StructuredLogger wraps a standard logger with component and file context.
type StructuredLogger struct {
	logger    *log.Logger
	component string
	fileID    string
	jsonMode  bool
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *log.Logger, component string, jsonMode bool) *StructuredLogger {
	return &StructuredLogger{
		logger:    OrDiscard(logger),
		component: component,
		jsonMode:  jsonMode,
	}
}

// WithFile returns a logger scoped to one workspace file.
func (s *StructuredLogger) WithFile(fileID string) *StructuredLogger {
	cp := *s
	cp.fileID = fileID
	return &cp
}

// WithComponent returns a logger with component context
func (s *StructuredLogger) WithComponent(component string) *StructuredLogger {
	cp := *s
	cp.component = component
	return &cp
}

func (s *StructuredLogger) log(level string, msg string, fields map[string]any) {
	if s.jsonMode {
		entry := LogEntry{
			Timestamp: time.Now().Format(time.RFC3339),
			Level:     level,
			Component: s.component,
			FileID:    s.fileID,
			Message:   msg,
			Fields:    fields,
		}
		data, err := json.Marshal(entry)
		if err != nil {
			s.logger.Printf("[%s] %s (unencodable fields: %v)", level, msg, err)
			return
		}
		s.logger.Println(string(data))
		return
	}

	var b strings.Builder
	if level != "INFO" {
		fmt.Fprintf(&b, "[%s] ", level)
	}
	if s.component != "" {
		fmt.Fprintf(&b, "[%s] ", s.component)
	}
	if s.fileID != "" {
		fmt.Fprintf(&b, "[file:%s] ", s.fileID)
	}
	b.WriteString(msg)
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" |")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}
	s.logger.Println(b.String())
}

// Info logs an info message
func (s *StructuredLogger) Info(msg string, fields ...map[string]any) {
	s.log("INFO", msg, mergeFields(fields...))
}

// Error logs an error message
func (s *StructuredLogger) Error(msg string, fields ...map[string]any) {
	s.log("ERROR", msg, mergeFields(fields...))
}

// Debug logs only under DEV_MODE.
func (s *StructuredLogger) Debug(msg string, fields ...map[string]any) {
	if !DevMode {
		return
	}
	s.log("DEBUG", msg, mergeFields(fields...))
}

// Warn logs a warning message
func (s *StructuredLogger) Warn(msg string, fields ...map[string]any) {
	s.log("WARN", msg, mergeFields(fields...))
}

// Printf provides compatibility with standard logger interface
func (s *StructuredLogger) Printf(format string, args ...any) {
	s.Info(fmt.Sprintf(format, args...))
}

// mergeFields combines multiple field maps
func mergeFields(fields ...map[string]any) map[string]any {
	result := make(map[string]any)
	for _, m := range fields {
		for k, v := range m {
			result[k] = v
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
