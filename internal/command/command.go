// Package command recognizes the control phrases a client can send to the server.
package command

import "strings"

// Command is the effect a received message has on its connection.
type Command int

const (
	None Command = iota
	ExitConsole
	CloseServer
)

const (
	phraseExitConsole = "exit console"
	phraseCloseServer = "close server"
)

// Interpret maps a received message to a Command. Surrounding whitespace is
// ignored and the comparison folds ASCII case only; anything else is None.
func Interpret(text string) Command {
	text = strings.TrimSpace(text)
	switch {
	case equalFoldASCII(text, phraseExitConsole):
		return ExitConsole
	case equalFoldASCII(text, phraseCloseServer):
		return CloseServer
	}
	return None
}

// Terminates reports whether the command ends the sending connection.
func (c Command) Terminates() bool {
	return c == ExitConsole || c == CloseServer
}

// ClosesServer reports whether the command also stops the accept loop.
func (c Command) ClosesServer() bool {
	return c == CloseServer
}

func (c Command) String() string {
	switch c {
	case ExitConsole:
		return phraseExitConsole
	case CloseServer:
		return phraseCloseServer
	}
	return "none"
}

func equalFoldASCII(s, t string) bool {
	if len(s) != len(t) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if lowerASCII(s[i]) != lowerASCII(t[i]) {
			return false
		}
	}
	return true
}

func lowerASCII(b byte) byte {
	if 'A' <= b && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
