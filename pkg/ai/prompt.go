package ai

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"promptforge/pkg/domain"
)

// SystemPrompt instructs the model to answer with a single JSON object
// mapping file paths to file contents.
const SystemPrompt = `You are an expert React developer. You generate complete, working multi-file React projects.

Respond with a single JSON object and nothing else. Keys are file paths starting with "/" (for example "/src/App.js"), values are the complete file contents as strings. Always include /src/App.js, /src/index.js, /public/index.html and /package.json. Do not wrap the JSON in markdown fences and do not add commentary.`

const maxUploadContextChars = 8000

// BuildPrompt assembles the user prompt for a fresh generation request.
// Upload context entries are appended verbatim beneath the prompt.
func BuildPrompt(prompt string, uploadContext []string) string {
	var sb strings.Builder
	sb.WriteString("Create a React project for the following request:\n\n")
	sb.WriteString(strings.TrimSpace(prompt))
	writeUploadContext(&sb, uploadContext)
	return sb.String()
}

// BuildIterativePrompt assembles the user prompt for an iterative update:
// the current project state is supplied so the model returns the complete
// updated project, and prior turn prompts give conversational context.
func BuildIterativePrompt(prompt string, current domain.FileState, previousPrompts []string, uploadContext []string) (string, error) {
	stateJSON, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode current files: %w", err)
	}
	var sb strings.Builder
	sb.WriteString("You previously generated the React project below. Apply the requested change and return the COMPLETE updated project as a JSON object with every file, including unchanged ones. Omit files you want deleted.\n\n")
	if len(previousPrompts) > 0 {
		sb.WriteString("Conversation so far:\n")
		for i, p := range previousPrompts {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, strings.TrimSpace(p))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Current project files:\n")
	sb.Write(stateJSON)
	sb.WriteString("\n\nRequested change:\n")
	sb.WriteString(strings.TrimSpace(prompt))
	writeUploadContext(&sb, uploadContext)
	return sb.String(), nil
}

func writeUploadContext(sb *strings.Builder, uploadContext []string) {
	if len(uploadContext) == 0 {
		return
	}
	sb.WriteString("\n\nThe user attached the following reference files:\n")
	total := 0
	for _, entry := range uploadContext {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if total+len(entry) > maxUploadContextChars {
			cut := maxUploadContextChars - total
			if cut <= 0 {
				break
			}
			// Back up to a rune boundary so truncation never splits a
			// multi-byte character.
			for cut > 0 && !utf8.RuneStart(entry[cut]) {
				cut--
			}
			entry = entry[:cut] + "…"
		}
		sb.WriteString("\n")
		sb.WriteString(entry)
		sb.WriteString("\n")
		total += len(entry)
	}
}
