package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitChapters(t *testing.T) {
	t.Run("pages before a heading fall into introduction", func(t *testing.T) {
		text := "Preface text\n\fChapter 1: Forces\nForces are pushes and pulls.\f More about forces."
		chapters := SplitChapters(text)

		assert.Contains(t, chapters, "Introduction")
		assert.Contains(t, chapters, "Forces")
		assert.Equal(t, "Preface text", chapters["Introduction"][1])
		assert.Contains(t, chapters["Forces"][2], "Forces are pushes and pulls.")
		assert.Equal(t, "More about forces.", chapters["Forces"][3])
	})

	t.Run("heading variants", func(t *testing.T) {
		chapters := SplitChapters("CHAPTER 2 - Waves\nWave content\fUnit 3.1: Optics\nLight bends")
		assert.Contains(t, chapters, "Waves")
		assert.Contains(t, chapters, "Optics")
	})

	t.Run("page numbers are absolute across chapters", func(t *testing.T) {
		chapters := SplitChapters("Chapter 1: A\nx\fy\fChapter 2: B\nz")
		assert.Equal(t, "y", chapters["A"][2])
		assert.Contains(t, chapters["B"][3], "z")
	})

	t.Run("blank pages are skipped", func(t *testing.T) {
		chapters := SplitChapters("Chapter 1: A\ncontent\f   \n  \fmore")
		assert.NotContains(t, chapters["A"], 2)
		assert.Equal(t, "more", chapters["A"][3])
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, SplitChapters(""))
	})
}
