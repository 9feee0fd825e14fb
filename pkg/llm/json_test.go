package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractObject(t *testing.T) {
	t.Run("plain json", func(t *testing.T) {
		var v map[string]interface{}
		ok := ExtractObject(`{"topic":"algebra","score":85}`, &v)
		assert.True(t, ok)
		assert.Equal(t, "algebra", v["topic"])
	})

	t.Run("json inside markdown fence", func(t *testing.T) {
		var v map[string]interface{}
		text := "Here is the schedule:\n```json\n{\"day\":\"Monday\"}\n```\nHope this helps!"
		ok := ExtractObject(text, &v)
		assert.True(t, ok)
		assert.Equal(t, "Monday", v["day"])
	})

	t.Run("surrounding prose", func(t *testing.T) {
		var v struct {
			Answer string `json:"answer"`
		}
		ok := ExtractObject(`Sure! {"answer":"42"} Let me know if you need more.`, &v)
		assert.True(t, ok)
		assert.Equal(t, "42", v.Answer)
	})

	t.Run("no braces", func(t *testing.T) {
		var v map[string]interface{}
		assert.False(t, ExtractObject("I cannot produce that.", &v))
	})

	t.Run("malformed json", func(t *testing.T) {
		var v map[string]interface{}
		assert.False(t, ExtractObject(`{"broken": `+"oops}", &v))
	})
}

func TestExtractArray(t *testing.T) {
	t.Run("array in prose", func(t *testing.T) {
		var v []map[string]interface{}
		text := `The weak areas are: [{"topic":"fractions"},{"topic":"geometry"}] as requested.`
		ok := ExtractArray(text, &v)
		assert.True(t, ok)
		assert.Len(t, v, 2)
		assert.Equal(t, "fractions", v[0]["topic"])
	})

	t.Run("empty array", func(t *testing.T) {
		var v []string
		ok := ExtractArray("result: []", &v)
		assert.True(t, ok)
		assert.Empty(t, v)
	})

	t.Run("no brackets", func(t *testing.T) {
		var v []string
		assert.False(t, ExtractArray("nothing here", &v))
	})
}
