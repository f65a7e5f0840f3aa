// Package ui formats the CLI's human-facing output.
package ui

import (
	"fmt"
	"sync/atomic"
)

var colorEnabled atomic.Bool

func init() { colorEnabled.Store(true) }

// SetColor turns ANSI colors on or off
func SetColor(on bool) { colorEnabled.Store(on) }

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		if !colorEnabled.Load() {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	fmt.Println(Red(withDetail(msg, args)))
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	fmt.Println(Green(msg))
}

// PrintInfo prints a label and value
func PrintInfo(label string, value string) {
	fmt.Printf("%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	fmt.Println(Yellow(withDetail(msg, args)))
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	fmt.Println(Magenta(msg))
}

func withDetail(msg string, args []interface{}) string {
	if len(args) > 0 {
		return msg + ": " + fmt.Sprintf("%v", args[0])
	}
	return msg
}
