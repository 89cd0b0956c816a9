package scanning

import "strings"

// transcribePrompt asks a vision model for a plain transcription. Name and
// amount guessing stays in Extract so every engine is judged the same way.
const transcribePrompt = `Transcribe all of the text in this receipt image exactly as printed.
Keep the original line breaks and reading order, one printed line per output line.
Do not summarize, translate, correct or add anything. Do not wrap the output in markdown.`

// cleanTranscription strips markdown code fences that models like to wrap
// their answers in
func cleanTranscription(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	// Drop the opening fence along with any language tag ("```text")
	if i := strings.Index(text, "\n"); i >= 0 {
		text = text[i+1:]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSuffix(strings.TrimRight(text, " \t\r\n"), "```")
	return strings.TrimSpace(text)
}
