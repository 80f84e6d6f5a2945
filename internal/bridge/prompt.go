package bridge

import (
	"strings"

	"github.com/clareza/clareza/internal/api"
)

// FileReference is the placeholder replaced by injected document content.
const FileReference = "@file_reference"

// OutputFormat is always requested from the tool.
const OutputFormat = "stream-json"

// PromptRequest is one user prompt with optional document content.
type PromptRequest struct {
	UserText        string
	InjectedContent *string
}

// FullPrompt returns the text sent to the tool. Content replaces every
// placeholder when one is present and is appended otherwise.
func (p PromptRequest) FullPrompt() string {
	if p.InjectedContent == nil {
		return p.UserText
	}
	content := *p.InjectedContent
	if strings.Contains(p.UserText, FileReference) {
		return strings.ReplaceAll(p.UserText, FileReference, "\n\nConteúdo do arquivo:\n```\n"+content+"\n```\n")
	}
	return p.UserText + "\n\nConteúdo do arquivo atual:\n```\n" + content + "\n```"
}

// BuildArgs returns the tool argument vector. With argument delivery the
// prompt is passed as -p; otherwise it goes over stdin and is omitted here.
// An empty prompt with argument delivery adds no -p flag.
func BuildArgs(model, delivery, prompt string) []string {
	var args []string
	if model != "" {
		args = append(args, "-m", model)
	}
	args = append(args, "--output-format", OutputFormat)
	if delivery == api.DeliveryArgument && prompt != "" {
		args = append(args, "-p", prompt)
	}
	return args
}

// Preview shortens s to n runes, marking the cut with "...".
func Preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
