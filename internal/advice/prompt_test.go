package advice

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisionPromptCarriesFormat(t *testing.T) {
	t.Parallel()

	prompt := VisionPrompt()
	assert.Contains(t, prompt, "تدوير")
	assert.Contains(t, prompt, "Analyze the following image")
	assert.Contains(t, prompt, nameLineTemplate)
	assert.Contains(t, prompt, "7. الصنف:")
}

func TestLibraryPromptPinsItemName(t *testing.T) {
	t.Parallel()

	prompt := LibraryPrompt("  قارورة زيت ")
	assert.Contains(t, prompt, `Provide information about recycling "قارورة زيت".`)
	assert.Contains(t, prompt, "1. الاسم: قارورة زيت\n")
	assert.False(t, strings.Contains(prompt, nameLineTemplate))
}
