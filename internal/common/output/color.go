package output

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

var (
	// Decision colors
	Update   = color.New(color.FgGreen)
	Hold     = color.New(color.FgYellow)
	Conflict = color.New(color.FgRed)
	NoOp     = color.New(color.Faint)
	Applied  = color.New(color.FgCyan)

	// Message colors
	Success = color.New(color.FgGreen)
	Warning = color.New(color.FgYellow)
	Error   = color.New(color.FgRed)
	Info    = color.New(color.FgCyan)
	Dim     = color.New(color.Faint)

	// Structural colors
	Header  = color.New(color.FgWhite, color.Bold)
	Package = color.New(color.FgBlue, color.Bold)
	Version = color.New(color.FgMagenta)
)

// NoColor disables color output
func NoColor() {
	color.NoColor = true
}

// ForceColor enables color output even when not a TTY
func ForceColor() {
	color.NoColor = false
}

// IsTerminal returns true if stdout is a terminal
func IsTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// DecisionColor returns the color for a decision kind or queue status
// ("update", "hold", "conflict", "noop", "pending", "applied", "failed").
func DecisionColor(kind string) *color.Color {
	switch kind {
	case "update", "pending":
		return Update
	case "hold":
		return Hold
	case "conflict", "failed":
		return Conflict
	case "applied":
		return Applied
	case "noop":
		return NoOp
	default:
		return color.New(color.Reset)
	}
}

// PrintSuccess prints a success message
func PrintSuccess(format string, args ...interface{}) {
	Success.Printf("✓ "+format+"\n", args...)
}

// PrintError prints an error message
func PrintError(format string, args ...interface{}) {
	Error.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

// PrintWarning prints a warning message
func PrintWarning(format string, args ...interface{}) {
	Warning.Printf("⚠ "+format+"\n", args...)
}

// PrintInfo prints an info message
func PrintInfo(format string, args ...interface{}) {
	Info.Printf("→ "+format+"\n", args...)
}

// Sprintf returns a colored string without printing
func Sprintf(c *color.Color, format string, args ...interface{}) string {
	return c.Sprintf(format, args...)
}

// FormatDecision formats a decision kind or status with its color
func FormatDecision(kind string) string {
	return DecisionColor(kind).Sprintf("[%s]", kind)
}

// FormatPackage formats a category/package atom with color
func FormatPackage(atom string) string {
	return Package.Sprint(atom)
}

// FormatVersion formats a version with color, "-" when empty
func FormatVersion(v string) string {
	if v == "" {
		return Dim.Sprint("-")
	}
	return Version.Sprint(v)
}

// FormatConfidence renders a confidence in [0, 1] as a percentage, colored
// green at or above threshold and yellow below it.
func FormatConfidence(confidence, threshold float64) string {
	c := Success
	if confidence < threshold {
		c = Warning
	}
	return c.Sprintf("%.0f%%", confidence*100)
}

// Box prints a boxed message
func Box(title, content string) {
	fmt.Println()
	Header.Println("┌─ " + title + " ─")
	fmt.Println("│")
	fmt.Println("│  " + content)
	fmt.Println("│")
	Header.Println("└────────────────")
	fmt.Println()
}
