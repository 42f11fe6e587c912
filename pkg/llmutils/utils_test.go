package llmutils_test

import (
	"testing"

	"github.com/effective-security/toolagent/pkg/llmutils"
	"github.com/stretchr/testify/assert"
)

func Test_ExtractJSON(t *testing.T) {
	args := `{"timezone": "Europe/Helsinki"}`
	for _, text := range []string{
		args,
		"\n```json\n\n" + args + "\n\n```\n\n",
		"\n```\n" + args + "\n```",
		"```" + args + "\n```",
		"Sure, calling the clock with " + args + " now.",
		"```json\n" + args + "\n```\nand then `" + "{\"x\":1}`",
	} {
		assert.Equal(t, args, string(llmutils.ExtractJSON(text)), text)
	}

	assert.Equal(t, `[{"id": 1}]`, string(llmutils.ExtractJSON("Here:\n```json\n[{\"id\": 1}]\n```")))
	assert.Equal(t, "no json", string(llmutils.ExtractJSON(" no json ")))
	assert.Equal(t, "} {", string(llmutils.ExtractJSON("} {")))
}

func Test_Encoders(t *testing.T) {
	val := map[string]any{"name": "get_current_time", "args": []string{"a"}}
	assert.Equal(t, `{"args":["a"],"name":"get_current_time"}`, llmutils.ToJSON(val))
	assert.Equal(t, "{\n\t\"args\": [\n\t\t\"a\"\n\t],\n\t\"name\": \"get_current_time\"\n}", llmutils.ToJSONIndent(val))
	assert.Equal(t, "args:\n    - a\nname: get_current_time\n", llmutils.ToYAML(val))
}

func Test_Truncate(t *testing.T) {
	assert.Equal(t, "hello", llmutils.Truncate("hello", 0))
	assert.Equal(t, "hello", llmutils.Truncate("hello", 5))
	assert.Equal(t, "he...", llmutils.Truncate("hello", 2))
	assert.Equal(t, "пр...", llmutils.Truncate("привет", 2))
}

func Test_EnsureEndsWithNewline(t *testing.T) {
	assert.Equal(t, "", llmutils.EnsureEndsWithNewline("  \n"))
	assert.Equal(t, "text\n", llmutils.EnsureEndsWithNewline(" text"))
	assert.Equal(t, "text\n", llmutils.EnsureEndsWithNewline("text\n\n"))
}
