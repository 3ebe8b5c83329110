//go:build linux

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

var interactiveHistory []string

// lineEditor is a minimal raw-mode line editor with history, word movement
// and the usual emacs-style bindings, just enough for the run REPL.
type lineEditor struct {
	prompt string
	line   []byte
	cursor int

	histPos      int
	histBrowsing bool
	histDraft    string
}

func readInteractiveLine(prompt string) (string, error) {
	if !stdinIsTTY() {
		r := bufio.NewReader(os.Stdin)
		s, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}
		return trimTrailingNewline(s), nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return "", err
	}
	rawState := *oldState
	rawState.Lflag &^= unix.ICANON | unix.ECHO
	rawState.Cc[unix.VMIN] = 1
	rawState.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &rawState); err != nil {
		return "", err
	}
	defer func() {
		_ = unix.IoctlSetTermios(fd, unix.TCSETS, oldState)
	}()

	ed := &lineEditor{
		prompt:  prompt,
		line:    make([]byte, 0, 256),
		histPos: len(interactiveHistory),
	}
	fmt.Print(prompt)
	return ed.readLoop()
}

func (ed *lineEditor) readLoop() (string, error) {
	escState := 0
	var escBuf strings.Builder
	var buf [16]byte

	for {
		n, err := os.Stdin.Read(buf[:])
		if err != nil {
			return "", err
		}
		for i := 0; i < n; i++ {
			b := buf[i]
			if escState != 0 {
				switch escState {
				case 1:
					switch {
					case b == '[':
						escState = 2
						escBuf.Reset()
					case b == 'b' || b == 'B':
						ed.moveWordLeft() // Alt+b
						escState = 0
					case b == 'f' || b == 'F':
						ed.moveWordRight() // Alt+f
						escState = 0
					case b == 127:
						ed.deleteWordBack() // Alt+Backspace
						escState = 0
					default:
						escState = 0
					}
				case 2:
					escBuf.WriteByte(b)
					if (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '~' {
						ed.handleCSI(escBuf.String())
						escState = 0
					}
				}
				continue
			}

			switch b {
			case 27: // ESC
				escState = 1
			case '\r', '\n':
				fmt.Print("\r\n")
				out := string(ed.line)
				if strings.TrimSpace(out) != "" {
					interactiveHistory = append(interactiveHistory, out)
				}
				return out, nil
			case 3: // Ctrl+C
				fmt.Print("^C\r\n")
				return "", io.EOF
			case 4: // Ctrl+D
				if len(ed.line) == 0 {
					fmt.Print("\r\n")
					return "", io.EOF
				}
			case 127, 8: // backspace
				if ed.cursor > 0 {
					ed.line = append(ed.line[:ed.cursor-1], ed.line[ed.cursor:]...)
					ed.cursor--
					ed.redraw()
				}
			case 1: // Ctrl+A
				ed.cursor = 0
				ed.redraw()
			case 5: // Ctrl+E
				ed.cursor = len(ed.line)
				ed.redraw()
			case 23: // Ctrl+W
				ed.deleteWordBack()
			default:
				if b >= 32 {
					ed.insert(b)
				}
			}
		}
	}
}

func (ed *lineEditor) insert(b byte) {
	if ed.cursor == len(ed.line) {
		ed.line = append(ed.line, b)
	} else {
		ed.line = append(ed.line, 0)
		copy(ed.line[ed.cursor+1:], ed.line[ed.cursor:])
		ed.line[ed.cursor] = b
	}
	ed.cursor++
	ed.redraw()
}

func (ed *lineEditor) redraw() {
	fmt.Printf("\r%s%s", ed.prompt, string(ed.line))
	fmt.Print("\x1b[K")
	if ed.cursor < len(ed.line) {
		fmt.Printf("\r%s%s", ed.prompt, string(ed.line[:ed.cursor]))
	}
}

func isWordSpace(b byte) bool {
	return b == ' ' || b == '\t'
}

func (ed *lineEditor) moveWordLeft() {
	if ed.cursor == 0 {
		return
	}
	for ed.cursor > 0 && isWordSpace(ed.line[ed.cursor-1]) {
		ed.cursor--
	}
	for ed.cursor > 0 && !isWordSpace(ed.line[ed.cursor-1]) {
		ed.cursor--
	}
	ed.redraw()
}

func (ed *lineEditor) moveWordRight() {
	if ed.cursor >= len(ed.line) {
		return
	}
	for ed.cursor < len(ed.line) && isWordSpace(ed.line[ed.cursor]) {
		ed.cursor++
	}
	for ed.cursor < len(ed.line) && !isWordSpace(ed.line[ed.cursor]) {
		ed.cursor++
	}
	ed.redraw()
}

func (ed *lineEditor) deleteWordBack() {
	if ed.cursor == 0 {
		return
	}
	start := ed.cursor
	for start > 0 && isWordSpace(ed.line[start-1]) {
		start--
	}
	for start > 0 && !isWordSpace(ed.line[start-1]) {
		start--
	}
	ed.line = append(ed.line[:start], ed.line[ed.cursor:]...)
	ed.cursor = start
	ed.redraw()
}

func (ed *lineEditor) deleteWordForward() {
	if ed.cursor >= len(ed.line) {
		return
	}
	end := ed.cursor
	for end < len(ed.line) && isWordSpace(ed.line[end]) {
		end++
	}
	for end < len(ed.line) && !isWordSpace(ed.line[end]) {
		end++
	}
	ed.line = append(ed.line[:ed.cursor], ed.line[end:]...)
	ed.redraw()
}

func (ed *lineEditor) handleCSI(seq string) {
	switch seq {
	case "A": // up
		if len(interactiveHistory) == 0 {
			return
		}
		if !ed.histBrowsing {
			ed.histDraft = string(ed.line)
			ed.histBrowsing = true
			ed.histPos = len(interactiveHistory)
		}
		if ed.histPos > 0 {
			ed.histPos--
			ed.line = append(ed.line[:0], interactiveHistory[ed.histPos]...)
			ed.cursor = len(ed.line)
			ed.redraw()
		}
	case "B": // down
		if !ed.histBrowsing {
			return
		}
		if ed.histPos < len(interactiveHistory)-1 {
			ed.histPos++
			ed.line = append(ed.line[:0], interactiveHistory[ed.histPos]...)
		} else {
			ed.histPos = len(interactiveHistory)
			ed.line = append(ed.line[:0], ed.histDraft...)
			ed.histBrowsing = false
		}
		ed.cursor = len(ed.line)
		ed.redraw()
	case "D": // left
		if ed.cursor > 0 {
			ed.cursor--
			ed.redraw()
		}
	case "C": // right
		if ed.cursor < len(ed.line) {
			ed.cursor++
			ed.redraw()
		}
	case "H":
		ed.cursor = 0
		ed.redraw()
	case "F":
		ed.cursor = len(ed.line)
		ed.redraw()
	case "3~": // delete
		if ed.cursor < len(ed.line) {
			ed.line = append(ed.line[:ed.cursor], ed.line[ed.cursor+1:]...)
			ed.redraw()
		}
	case "1;5D", "5D":
		ed.moveWordLeft()
	case "1;5C", "5C":
		ed.moveWordRight()
	case "3;5~":
		ed.deleteWordForward()
	}
}

func trimTrailingNewline(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '\r' {
		s = s[:len(s)-1]
	}
	return s
}
