package collab

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/chris17453/echomatrix/internal/errs"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// PromptTemplate renders {{var}} placeholders against a variable map. A
// placeholder with no matching variable is a client-side error, surfaced
// before any provider is called, per the "missing variables referenced by
// the template are a client-side error" contract.
type PromptTemplate struct {
	Name string
	Body string
}

// Render substitutes every {{var}} in t.Body with variables[var]. It
// returns an errs.CollaboratorFailed-kind error naming the first missing
// variable encountered.
func (t PromptTemplate) Render(variables map[string]string) (string, error) {
	var missing string
	out := placeholderPattern.ReplaceAllStringFunc(t.Body, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		v, ok := variables[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return match
		}
		return v
	})
	if missing != "" {
		return "", errs.New(errs.CollaboratorFailed, fmt.Sprintf("collab: prompt %q missing variable %q", t.Name, missing))
	}
	return out, nil
}

// genericTemplateBody is the body of the default prompt used by the
// Dialogue Orchestrator: its {{transcript}} placeholder receives the
// unprocessed transcript tail as "role: text" lines, and it asks for a
// single spoken reply.
const genericTemplateBody = `You are a helpful voice assistant speaking on a phone call. Reply with a single short, natural spoken sentence — no markdown, no lists.

Conversation so far:
{{transcript}}

Reply:`

// GenericTemplate is the built-in "generic" prompt template named by
// spec.md's Dialogue Orchestrator step 5.
var GenericTemplate = PromptTemplate{Name: "generic", Body: genericTemplateBody}

// Templates is a small named registry a Replier implementation or the
// Orchestrator can use to resolve a prompt name to a PromptTemplate.
type Templates struct {
	byName map[string]PromptTemplate
}

// NewTemplates returns a registry seeded with GenericTemplate plus any
// extras supplied.
func NewTemplates(extra ...PromptTemplate) *Templates {
	t := &Templates{byName: map[string]PromptTemplate{GenericTemplate.Name: GenericTemplate}}
	for _, e := range extra {
		t.byName[e.Name] = e
	}
	return t
}

// Render looks up name and renders it against variables.
func (t *Templates) Render(name string, variables map[string]string) (string, error) {
	tmpl, ok := t.byName[name]
	if !ok {
		return "", errs.New(errs.CollaboratorFailed, fmt.Sprintf("collab: unknown prompt template %q", name))
	}
	return tmpl.Render(variables)
}

// BuildTranscriptVariable renders chat lines as "role: text", oldest first,
// for use as the {{transcript}} variable of GenericTemplate.
func BuildTranscriptVariable(lines []string) string {
	return strings.Join(lines, "\n")
}
