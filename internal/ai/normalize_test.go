package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"a":1}`, `{"a":1}`},
		{"fenced", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced with tag", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose before fence", "Here you go:\n```json\n{\"a\":1}\n```", `{"a":1}`},
		{"whitespace", "  \n{\"a\":1}\n  ", `{"a":1}`},
		{"unclosed fence", "```json\n{\"a\":1}", `{"a":1}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, StripFences(c.in))
		})
	}
}

func TestParseObject(t *testing.T) {
	var out struct {
		SEO []string `json:"seo"`
	}
	err := ParseObject("```json\n{\"seo\":[\"https://a.example/\"]}\n```", &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example/"}, out.SEO)
}

func TestParseObjectRejectsGarbage(t *testing.T) {
	var out map[string]any
	assert.Error(t, ParseObject("I could not find any pages.", &out))
	assert.Error(t, ParseObject("", &out))
}

func TestStringListCoercion(t *testing.T) {
	assert.Empty(t, StringList(nil))
	assert.Equal(t, []string{"x"}, StringList("x"))
	assert.Equal(t, []string{"a", "b"}, StringList([]any{"a", 3, "b", nil}))
	assert.Empty(t, StringList(map[string]any{}))
}

func TestNumberCoercion(t *testing.T) {
	f, ok := Number(72.5)
	require.True(t, ok)
	assert.Equal(t, 72.5, f)

	f, ok = Number("68")
	require.True(t, ok)
	assert.Equal(t, 68.0, f)

	_, ok = Number(nil)
	assert.False(t, ok)
}
