package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTestReport(t *testing.T) {
	t.Run("full report", func(t *testing.T) {
		text := "Mid-term Examination\nSubject: Physics\nScore: 65/100\nIncorrect: Newton's laws, thermodynamics; wave optics"
		report := ParseTestReport(text)

		assert.Equal(t, 65, report.Score)
		assert.Equal(t, 100, report.Total)
		assert.Equal(t, "Physics", report.Subject)
		assert.Equal(t, "Physics", report.Topic)
		assert.Equal(t, []string{"Newton's laws", "thermodynamics", "wave optics"}, report.IncorrectTopics)
		assert.InDelta(t, 1.0, report.ParsingConfidence, 1e-9)
	})

	t.Run("alternate labels", func(t *testing.T) {
		report := ParseTestReport("Course: Mathematics\nMarks: 40 50\nWrong: fractions")
		assert.Equal(t, 40, report.Score)
		assert.Equal(t, 50, report.Total)
		assert.Equal(t, "Mathematics", report.Subject)
		assert.Equal(t, []string{"fractions"}, report.IncorrectTopics)
	})

	t.Run("score only", func(t *testing.T) {
		report := ParseTestReport("Score: 8/10")
		assert.Equal(t, 8, report.Score)
		assert.Equal(t, "Unknown", report.Subject)
		assert.Equal(t, "General", report.Topic)
		assert.InDelta(t, 0.4, report.ParsingConfidence, 1e-9)
	})

	t.Run("keyword fallback for incorrect topics", func(t *testing.T) {
		report := ParseTestReport("The test covered algebra and geometry. Algebra was hard.")
		assert.Equal(t, []string{"Algebra", "Geometry"}, report.IncorrectTopics)
		// 关键词兜底不计入解析置信度
		assert.Zero(t, report.ParsingConfidence)
	})

	t.Run("empty text", func(t *testing.T) {
		report := ParseTestReport("")
		assert.Zero(t, report.Score)
		assert.Equal(t, "Unknown", report.Subject)
		assert.Empty(t, report.IncorrectTopics)
		assert.Zero(t, report.ParsingConfidence)
	})
}
