package assistant

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystemPromptSelectsRole(t *testing.T) {
	vendor := SystemPrompt(RoleVendor)
	couple := SystemPrompt(RoleCouple)

	assert.NotEqual(t, vendor, couple)
	assert.Contains(t, vendor, "wedding vendor")
	assert.Contains(t, couple, "engaged couple")

	// Unknown roles default to the couple prompt, like the widget does.
	assert.Equal(t, couple, SystemPrompt("something-else"))
	assert.Equal(t, couple, SystemPrompt(""))
}

func TestSystemPromptsCarryMetadataInstructions(t *testing.T) {
	for _, role := range []string{RoleVendor, RoleCouple} {
		prompt := SystemPrompt(role)
		assert.True(t, strings.Contains(prompt, MetadataOpen), "prompt for %s must request the metadata block", role)
		assert.True(t, strings.Contains(prompt, MetadataClose))
	}
}
