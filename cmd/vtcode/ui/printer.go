package ui

import (
	"fmt"
	"strings"
)

// IsRawMode indicates whether stdin is currently in raw mode (set while a
// turn is streaming and cancellation is monitored via raw keystrokes).
var IsRawMode = false

// Printf mimics fmt.Printf but rewrites bare newlines to CRLF while the
// terminal is in raw mode.
func Printf(format string, a ...interface{}) {
	Print(fmt.Sprintf(format, a...))
}

// Print mimics fmt.Print but rewrites bare newlines to CRLF while the
// terminal is in raw mode.
func Print(a ...interface{}) {
	s := fmt.Sprint(a...)
	if IsRawMode {
		s = strings.ReplaceAll(s, "\n", "\r\n")
	}
	fmt.Print(s)
}

// Println mimics fmt.Println but rewrites bare newlines to CRLF while the
// terminal is in raw mode.
func Println(a ...interface{}) {
	s := fmt.Sprint(a...)
	if IsRawMode {
		s = strings.ReplaceAll(s, "\n", "\r\n")
		fmt.Print(s + "\r\n")
	} else {
		fmt.Println(s)
	}
}
