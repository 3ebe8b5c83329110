//go:build !linux

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

var stdinLines = bufio.NewScanner(os.Stdin)

// readInteractiveLine is the plain fallback for platforms without raw-mode
// line editing. It prints the prompt and reads one line, reporting io.EOF
// when stdin is exhausted so the caller's loop terminates.
func readInteractiveLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if !stdinLines.Scan() {
		if err := stdinLines.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return stdinLines.Text(), nil
}
