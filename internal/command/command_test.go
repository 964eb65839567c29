package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterpret(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Command
	}{
		{name: "Plain Message", input: "hello", expected: None},
		{name: "Empty Message", input: "", expected: None},
		{name: "Exit Console", input: "exit console", expected: ExitConsole},
		{name: "Exit Console Upper", input: "EXIT CONSOLE", expected: ExitConsole},
		{name: "Exit Console Padded", input: " Exit Console ", expected: ExitConsole},
		{name: "Exit Console With Newline", input: "exit console\r\n", expected: ExitConsole},
		{name: "Close Server", input: "close server", expected: CloseServer},
		{name: "Close Server Mixed Case", input: "\tClOsE SeRvEr\n", expected: CloseServer},
		{name: "Prefix Only", input: "exit", expected: None},
		{name: "Trailing Words", input: "close server now", expected: None},
		{name: "Inner Whitespace Differs", input: "exit  console", expected: None},
		{name: "Non ASCII Fold", input: "exıt console", expected: None},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Interpret(tt.input))
		})
	}
}

func TestCommandEffects(t *testing.T) {
	assert.False(t, None.Terminates())
	assert.False(t, None.ClosesServer())

	assert.True(t, ExitConsole.Terminates())
	assert.False(t, ExitConsole.ClosesServer())

	assert.True(t, CloseServer.Terminates())
	assert.True(t, CloseServer.ClosesServer())
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "none", None.String())
	assert.Equal(t, "exit console", ExitConsole.String())
	assert.Equal(t, "close server", CloseServer.String())
}
