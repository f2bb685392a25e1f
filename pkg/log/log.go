// Copyright 2025 walteh LLC
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

package log

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// 🎨 Display configuration
const (
	assetIndent = 4  // spaces to indent asset entries
	nameWidth   = 45 // base width for the asset name
	kindWidth   = 10 // width for the asset kind
)

// 🎯 AssetOperation represents one asset's migration for logging
type AssetOperation struct {
	Source     string // source reference
	TargetPath string // derived target path
	Kind       string // image/document
	Fulfilled  bool   // whether the asset was migrated
	Cached     bool   // whether the resume cache satisfied it
	Reason     string // rejection reason, when not fulfilled
}

// 📦 PageOperation represents a page migration for logging
type PageOperation struct {
	Path   string // page file path
	Index  int    // 1-based position in the run
	Total  int    // total pages in the run
	Assets int    // matched assets on this page
}

// 🎯 Logger handles structured logging with console output
type Logger struct {
	zlog      zerolog.Logger
	console   io.Writer
	mu        sync.Mutex
	currentOp *PageOperation
}

// 🏭 New creates a new logger
func New(console io.Writer, level zerolog.Level) *Logger {
	zlog := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger().Level(level)
	return &Logger{
		zlog:    zlog,
		console: console,
	}
}

// 📝 formatAssetOperation formats an asset operation for display
func (l *Logger) formatAssetOperation(op AssetOperation) string {
	var symbol string
	var symbolColor color.Attribute
	switch {
	case op.Cached:
		symbol = "•"
		symbolColor = color.FgCyan
	case op.Fulfilled:
		symbol = "✓"
		symbolColor = color.FgGreen
	default:
		symbol = "✗"
		symbolColor = color.FgRed
	}

	status := op.TargetPath
	if !op.Fulfilled {
		status = op.Reason
	}

	return fmt.Sprintf("%s%s %s %s %s",
		fmt.Sprintf("%*s", assetIndent, ""),
		color.New(symbolColor).Sprint(symbol),
		fmt.Sprintf("%-*s", nameWidth, truncate(op.Source, nameWidth)),
		color.New(color.FgBlue).Sprint(fmt.Sprintf("%-*s", kindWidth, op.Kind)),
		status)
}

// 📝 LogAssetOperation logs one asset's migration outcome
func (l *Logger) LogAssetOperation(op AssetOperation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintln(l.console, l.formatAssetOperation(op))

	l.zlog.Info().
		Str("source", op.Source).
		Str("target", op.TargetPath).
		Str("kind", op.Kind).
		Bool("fulfilled", op.Fulfilled).
		Bool("cached", op.Cached).
		Msg("asset operation")
}

// 📝 StartPageOperation starts a new page operation
func (l *Logger) StartPageOperation(op PageOperation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.currentOp = &op

	fmt.Fprintf(l.console, "\n[migrating %s]\n",
		color.New(color.FgCyan).Sprint(op.Path))

	fmt.Fprintf(l.console, "%s %s %s %s\n",
		color.New(color.FgMagenta).Sprint("◆"),
		color.New(color.Bold).Sprintf("page %d/%d", op.Index, op.Total),
		color.New(color.Faint).Sprint("•"),
		color.New(color.FgYellow).Sprintf("%d assets", op.Assets))

	l.zlog.Info().
		Str("page", op.Path).
		Int("index", op.Index).
		Int("total", op.Total).
		Int("assets", op.Assets).
		Msg("starting page migration")
}

// 📝 EndPageOperation ends the current page operation
func (l *Logger) EndPageOperation() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.currentOp == nil {
		return
	}

	l.zlog.Info().
		Str("page", l.currentOp.Path).
		Msg("page migration complete")

	l.currentOp = nil
}

// 📝 Header logs a header
func (l *Logger) Header(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	name := color.New(color.Bold, color.FgCyan).Sprint("webmigrate")
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

// 📝 Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(l.console, "ℹ️  %s\n", color.New(color.FgCyan).Sprint(msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Warningf logs a formatted warning message
func (l *Logger) Warningf(format string, args ...interface{}) {
	l.Warning(fmt.Sprintf(format, args...))
}

// 📝 Successf logs a formatted success message
func (l *Logger) Successf(format string, args ...interface{}) {
	l.Success(fmt.Sprintf(format, args...))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 1 {
		return s[:max]
	}
	return s[:max-1] + "…"
}
