package tldr

import "strings"

// Language selects the prompt wording.
type Language string

const (
	LanguageDefault Language = ""
	LanguageCzech   Language = "CZ"
)

type promptText struct {
	header       string
	contextLabel string
}

var prompts = map[Language]promptText{
	LanguageDefault: {
		header:       "Summarize the following conversation in a concise TLDR format:",
		contextLabel: "Additional context: ",
	},
	LanguageCzech: {
		header:       "Shrň následující konverzaci mezi uživateli na Discordu, buď stručný, řekni hlavní věci co se řešily a jaký názor zastával:",
		contextLabel: "Doplňující kontext: ",
	},
}

// Request is everything needed to generate one summary.
type Request struct {
	Window   Window
	Context  string
	Model    string
	Language Language
}

// BuildPrompt renders the header for the request language, a blank line,
// the utterances one per line, and the context block when context is set.
// Unknown languages use the default wording.
func BuildPrompt(req Request) string {
	text, ok := prompts[req.Language]
	if !ok {
		text = prompts[LanguageDefault]
	}

	var b strings.Builder
	b.WriteString(text.header)
	b.WriteString("\n\n")
	b.WriteString(strings.Join(req.Window.Lines(), "\n"))
	if req.Context != "" {
		b.WriteString("\n\n")
		b.WriteString(text.contextLabel)
		b.WriteString(req.Context)
	}
	return b.String()
}
