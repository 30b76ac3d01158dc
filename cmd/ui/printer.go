package ui

import (
	"fmt"
	"strings"
)

// IsRawMode tracks whether the terminal is currently in raw mode. While the
// interrupt monitor holds the terminal raw, every newline written to it must
// go out as CRLF or output staircases.
var IsRawMode = false

func crlf(s string) string {
	if !IsRawMode {
		return s
	}
	return strings.ReplaceAll(s, "\n", "\r\n")
}

// Print writes to stdout, translating newlines when the terminal is raw.
func Print(a ...interface{}) {
	fmt.Print(crlf(fmt.Sprint(a...)))
}

// Printf formats like fmt.Printf with the same newline translation.
func Printf(format string, a ...interface{}) {
	Print(fmt.Sprintf(format, a...))
}

// Println appends a newline, keeping the trailing break CRLF-safe too.
func Println(a ...interface{}) {
	Print(fmt.Sprint(a...) + "\n")
}

// Errorf prints a highlighted error line on its own row.
func Errorf(format string, a ...interface{}) {
	Print("\n❌ " + fmt.Sprintf(format, a...) + "\n")
}
