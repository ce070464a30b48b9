package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOutputLines(t *testing.T) {
	t.Run("short output keeps head only", func(t *testing.T) {
		lines := ParseOutputLines("a\r\nb\r\nc\r\n", 5)
		assert.Equal(t, []string{"a", "b", "c"}, lines.HeadLines)
		assert.Empty(t, lines.TailLines)
		assert.Equal(t, 3, lines.Total)
	})

	t.Run("long output splits head and tail", func(t *testing.T) {
		lines := ParseOutputLines("1\n2\n3\n4\n5\n6", 2)
		assert.Equal(t, []string{"1", "2"}, lines.HeadLines)
		assert.Equal(t, []string{"5", "6"}, lines.TailLines)
		assert.Equal(t, "head-lines: [1 ⟩ 2], tail-lines: [5 ⟩ 6]", FormatOutputLines(lines))
	})

	t.Run("empty output", func(t *testing.T) {
		lines := ParseOutputLines("\n", 3)
		assert.Zero(t, lines.Total)
		assert.Equal(t, "", FormatOutputLines(lines))
	})
}
