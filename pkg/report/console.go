// Copyright 2025 seqops LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package report renders human-facing output for planning and execution runs:
// per-file console lines, plan and summary tables, and a structured log
// mirror.
package report

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// 🎨 Display configuration
const (
	fileIndent  = 4  // spaces to indent file entries
	nameWidth   = 40 // base width for the source path
	actionWidth = 24 // width for the action column
)

// 🎯 FileOutcome represents one file's result for console display
type FileOutcome struct {
	Source   string // drop-relative source path
	Target   string // repository-relative target path
	Action   string // copy / copy+update / copy+create / skip
	Reason   string // skip or failure reason, if any
	Failed   bool
	Skipped  bool
	Archived bool
}

// 🎯 Logger handles structured logging with console output
type Logger struct {
	zlog    zerolog.Logger
	console io.Writer
	mu      sync.Mutex
}

// 🏭 New creates a console reporter mirroring to the structured logger
func New(console io.Writer, zlog zerolog.Logger) *Logger {
	return &Logger{
		zlog:    zlog,
		console: console,
	}
}

// 🔑 contextKey is the type for context values
type contextKey struct{}

// 🎯 FromContext gets the reporter from context
func FromContext(ctx context.Context) *Logger {
	logger, ok := ctx.Value(contextKey{}).(*Logger)
	if !ok {
		panic("reporter not found in context")
	}
	return logger
}

// 🎯 NewContext adds the reporter to context
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// 📝 formatFileOutcome formats one file result for display
func (l *Logger) formatFileOutcome(out FileOutcome) string {
	var symbol rune
	var symbolColor color.Attribute
	switch {
	case out.Failed:
		symbol = '✗'
		symbolColor = color.FgRed
	case out.Skipped:
		symbol = '-'
		symbolColor = color.FgYellow
	case out.Archived:
		symbol = '✓'
		symbolColor = color.FgGreen
	default:
		symbol = '⟳'
		symbolColor = color.FgBlue
	}

	suffix := out.Target
	if out.Reason != "" {
		suffix = color.New(color.Faint).Sprint("(" + out.Reason + ")")
	}

	return fmt.Sprintf("%s%s %s %s %s",
		fmt.Sprintf("%*s", fileIndent, ""),
		color.New(symbolColor).Sprint(string(symbol)),
		fmt.Sprintf("%-*s", nameWidth, out.Source),
		color.New(color.FgCyan).Sprint(fmt.Sprintf("%-*s", actionWidth, out.Action)),
		suffix)
}

// 📝 LogFileOutcome logs one file's result
func (l *Logger) LogFileOutcome(ctx context.Context, out FileOutcome) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintln(l.console, l.formatFileOutcome(out))

	l.zlog.Info().
		Str("source", out.Source).
		Str("target", out.Target).
		Str("action", out.Action).
		Str("reason", out.Reason).
		Bool("failed", out.Failed).
		Bool("skipped", out.Skipped).
		Bool("archived", out.Archived).
		Msg("file outcome")
}

// 📝 Header logs a run header
func (l *Logger) Header(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	name := color.New(color.Bold, color.FgCyan).Sprint("dropsync")
	fmt.Fprintf(l.console, "\n%s %s\n\n", name, color.New(color.Faint).Sprint("• "+msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Success logs a success message
func (l *Logger) Success(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "✅ %s\n", color.New(color.FgGreen).Sprint(msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Warning logs a warning message
func (l *Logger) Warning(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "⚠️  %s\n", color.New(color.FgYellow).Sprint(msg))
	l.zlog.Warn().Msg(msg)
}

// 📝 Error logs an error message
func (l *Logger) Error(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "❌ %s\n", color.New(color.FgRed).Sprint(msg))
	l.zlog.Error().Msg(msg)
}

// 📝 Info logs an info message
func (l *Logger) Info(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "ℹ️  %s\n", color.New(color.FgCyan).Sprint(msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

// 📝 Warningf logs a formatted warning message
func (l *Logger) Warningf(format string, args ...interface{}) {
	l.Warning(fmt.Sprintf(format, args...))
}

// 📝 Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

// 📝 Successf logs a formatted success message
func (l *Logger) Successf(format string, args ...interface{}) {
	l.Success(fmt.Sprintf(format, args...))
}

// 📝 LogNewline logs a newline
func (l *Logger) LogNewline() {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.console)
}
