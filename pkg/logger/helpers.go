package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Icons and symbols for different log types
const (
	IconSuccess = "✅"
	IconError   = "❌"
	IconWarning = "⚠️"
	IconRocket  = "🚀"
	IconNetwork = "🌐"
	IconRefresh = "🔄"
	IconDot     = "•"
	IconArrow   = "→"
)

var (
	sectionColor = color.New(color.FgCyan)
	titleColor   = color.New(color.FgCyan, color.Bold)
	subColor     = color.New(color.FgHiBlack)
	keyColor     = color.New(color.FgCyan)
	headerColor  = color.New(color.Bold)
)

// Success logs a success message with a green checkmark
func Success(args ...interface{}) {
	message := fmt.Sprint(args...)
	defaultLogger.Info(IconSuccess + " " + message)
}

// Successf logs a formatted success message
func Successf(format string, args ...interface{}) {
	Success(fmt.Sprintf(format, args...))
}

// Progress logs a progress message with a refresh icon
func Progress(args ...interface{}) {
	message := fmt.Sprint(args...)
	defaultLogger.Info(IconRefresh + " " + message)
}

// Progressf logs a formatted progress message
func Progressf(format string, args ...interface{}) {
	Progress(fmt.Sprintf(format, args...))
}

// Network logs a network-related message
func Network(args ...interface{}) {
	message := fmt.Sprint(args...)
	defaultLogger.Info(IconNetwork + " " + message)
}

// Networkf logs a formatted network message
func Networkf(format string, args ...interface{}) {
	Network(fmt.Sprintf(format, args...))
}

// console returns the writer and painter of the default logger
func console() (io.Writer, func(*color.Color, string) string) {
	if l, ok := defaultLogger.(*logger); ok {
		l.out.mu.Lock()
		w, noColor := l.out.writer, l.out.noColor
		l.out.mu.Unlock()
		return w, func(c *color.Color, s string) string {
			if noColor {
				return s
			}
			return c.Sprint(s)
		}
	}
	return os.Stdout, func(_ *color.Color, s string) string { return s }
}

// LogSection creates a visual section separator
func LogSection(title string) {
	w, paint := console()
	line := strings.Repeat("=", 50)
	fmt.Fprintln(w, paint(sectionColor, line))
	fmt.Fprintln(w, paint(titleColor, title))
	fmt.Fprintln(w, paint(sectionColor, line))
}

// LogSubSection creates a visual subsection separator
func LogSubSection(title string) {
	w, paint := console()
	line := strings.Repeat("-", 40)
	fmt.Fprintln(w, paint(subColor, line))
	fmt.Fprintln(w, paint(subColor, title))
	fmt.Fprintln(w, paint(subColor, line))
}

// LogList logs a list of items with bullets
func LogList(title string, items []string) {
	Info(title)
	w, _ := console()
	for _, item := range items {
		fmt.Fprintf(w, "  %s %s\n", IconDot, item)
	}
}

// LogKeyValue logs a key-value pair with nice formatting
func LogKeyValue(key string, value interface{}) {
	w, paint := console()
	fmt.Fprintf(w, "%s %v\n", paint(keyColor, key+":"), value)
}

// Table represents a simple table for logging
type Table struct {
	headers []string
	rows    [][]string
}

// NewTable creates a new table
func NewTable(headers ...string) *Table {
	return &Table{
		headers: headers,
		rows:    [][]string{},
	}
}

// AddRow adds a row to the table
func (t *Table) AddRow(values ...string) {
	t.rows = append(t.rows, values)
}

// Print prints the table
func (t *Table) Print() {
	if len(t.headers) == 0 {
		return
	}
	w, paint := console()

	// Calculate column widths
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, h := range t.headers {
		fmt.Fprint(w, paint(headerColor, fmt.Sprintf("%-*s", widths[i], h))+"  ")
	}
	fmt.Fprintln(w)

	for i := range t.headers {
		fmt.Fprint(w, strings.Repeat("-", widths[i])+"  ")
	}
	fmt.Fprintln(w)

	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(w, "%-*s  ", widths[i], cell)
			}
		}
		fmt.Fprintln(w)
	}
}
