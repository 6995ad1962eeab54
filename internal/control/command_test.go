// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Command
	}{
		{"quit", "quit", QuitCommand()},
		{"quit with nul", "quit\x00", QuitCommand()},
		{"play", "play=/tmp/a.h264", PlayCommand("/tmp/a.h264")},
		{"play keeps later separators", "play=/tmp/a=b.h264", PlayCommand("/tmp/a=b.h264")},
		{"play without path", "play=", Command{}},
		{"play without separator", "play", Command{}},
		{"pause", "pause", Command{Kind: Pause}},
		{"resume", "resume", Command{Kind: Resume}},
		{"continue alias", "continue", Command{Kind: Resume}},
		{"unknown", "rewind=5", Command{}},
		{"empty", "", Command{}},
		{"case sensitive", "QUIT", Command{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse([]byte(tt.frame)))
		})
	}
}

func TestCommand_Encode(t *testing.T) {
	assert.Equal(t, "quit", string(QuitCommand().Encode()))
	assert.Equal(t, "play=/v/b.h264", string(PlayCommand("/v/b.h264").Encode()))
	assert.Nil(t, Command{}.Encode())

	for _, c := range []Command{QuitCommand(), PlayCommand("/x"), {Kind: Pause}, {Kind: Resume}} {
		assert.Equal(t, c, Parse(c.Encode()), c.String())
	}
}

func TestCommand_Interrupts(t *testing.T) {
	assert.True(t, QuitCommand().Interrupts())
	assert.True(t, PlayCommand("/x").Interrupts())
	assert.False(t, Command{Kind: Pause}.Interrupts())
	assert.False(t, Command{Kind: Resume}.Interrupts())
	assert.False(t, Command{}.Interrupts())
	assert.True(t, Command{}.IsNoOp())
}
