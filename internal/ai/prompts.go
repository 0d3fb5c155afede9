package ai

import (
	_ "embed"
	"text/template"
)

//go:embed prompts/extract_preferences.md
var extractPromptRaw string

//go:embed prompts/standardize_terms.md
var standardizePromptRaw string

// ExtractTemplate is the prompt for preference extraction. It expects {{.Query}}.
var ExtractTemplate = template.Must(template.New("extract_preferences").Parse(extractPromptRaw))

// StandardizeTemplate is the prompt for term standardization. It expects
// {{.Terms}}, a list of {Field, Value}.
var StandardizeTemplate = template.Must(template.New("standardize_terms").Parse(standardizePromptRaw))
