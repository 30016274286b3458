package crustty

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMockTerminalPrintCoalescesSameStep(t *testing.T) {
	term := NewMockTerminal()
	term.Print("hello ", 3)
	term.Print("world\n", 3)
	require := assert.New(t)
	require.Len(term.Records, 1)
	require.Equal("hello world\n", term.Records[0].Text)
}

func TestMockTerminalPrintStartsNewRecordOnNewStep(t *testing.T) {
	term := NewMockTerminal()
	term.Print("a\n", 1)
	term.Print("b\n", 2)
	assert.Len(t, term.Records, 2)
}

func TestMockTerminalPromptAndEchoAreSeparateRecordKinds(t *testing.T) {
	term := NewMockTerminal()
	term.Prompt("enter: ", 1)
	term.Echo("42\n", 2)
	assert.Equal(t, OutputInputPrompt, term.Records[0].Kind)
	assert.Equal(t, OutputInputEcho, term.Records[1].Kind)
}

func TestMockTerminalLinesSplitsOutputOnly(t *testing.T) {
	term := NewMockTerminal()
	term.Print("line1\nline2\n", 1)
	term.Prompt("ignored prompt", 1)
	lines := term.Lines()
	assert.Equal(t, []string{"line1", "line2"}, lines)
}

func TestMockTerminalLinesKeepsTrailingPartialLine(t *testing.T) {
	term := NewMockTerminal()
	term.Print("full\npartial", 1)
	assert.Equal(t, []string{"full", "partial"}, term.Lines())
}

func TestMockTerminalCloneIsIndependent(t *testing.T) {
	term := NewMockTerminal()
	term.Print("a", 1)
	clone := term.Clone()
	clone.Print("b", 1)
	assert.Equal(t, "a", term.Records[0].Text)
	assert.Equal(t, "ab", clone.Records[0].Text)
}
