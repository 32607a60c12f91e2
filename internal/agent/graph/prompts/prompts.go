package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

var (
	//go:embed template/router_prompt.txt
	routerSystemPrompt string

	//go:embed template/query_prompt.txt
	querySystemPrompt string

	//go:embed template/query_answer_prompt.txt
	queryAnswerSystemPrompt string

	//go:embed template/answer_prompt.txt
	answerSystemPrompt string

	//go:embed template/persona.txt
	defaultPersona string
)

const (
	historyKey = "history"

	NoContextNotice = "No se encontró contexto externo relevante."
	DefaultLanguage = "español"
)

// DefaultPersona returns the built-in identity text.
func DefaultPersona() string {
	return strings.TrimSpace(defaultPersona)
}

// render formats a system template followed by the history through an Eino
// prompt component, so prompt callbacks fire for every render.
func render(ctx context.Context, name, system string, vars map[string]any, history []*schema.Message) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(system),
		schema.MessagesPlaceholder(historyKey, true),
	)
	if vars == nil {
		vars = map[string]any{}
	}
	vars[historyKey] = history

	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("%s prompt render: %w", name, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return nil, fmt.Errorf("%s prompt render: empty result", name)
	}
	return msgs, nil
}

// RenderRouter builds the classifier input for the recent history.
func RenderRouter(ctx context.Context, table string, history []*schema.Message) ([]*schema.Message, error) {
	return render(ctx, "router", routerSystemPrompt, map[string]any{"Table": table}, history)
}

// RenderQueryGeneration builds the SQL generation input. A non-empty
// previousError is appended as a corrective user turn.
func RenderQueryGeneration(ctx context.Context, dbSchema string, history []*schema.Message, previousError string) ([]*schema.Message, error) {
	msgs, err := render(ctx, "query", querySystemPrompt, map[string]any{"Schema": dbSchema}, history)
	if err != nil {
		return nil, err
	}
	if previousError != "" {
		msgs = append(msgs, schema.UserMessage(fmt.Sprintf(
			"El intento anterior falló con el error: %s. Por favor, corrige la consulta SQL y vuelve a intentarlo.",
			previousError,
		)))
	}
	return msgs, nil
}

// RenderQueryAnswer builds the input that turns query rows into prose.
func RenderQueryAnswer(ctx context.Context, question, result, language string) ([]*schema.Message, error) {
	if language == "" {
		language = DefaultLanguage
	}
	vars := map[string]any{
		"Question": question,
		"Result":   result,
		"Language": language,
	}
	return render(ctx, "query answer", queryAnswerSystemPrompt, vars, []*schema.Message{schema.UserMessage(question)})
}

// AnswerVars feeds the answer synthesizer template.
type AnswerVars struct {
	Persona  string
	Context  string
	Language string
	// PersonaOnly withholds the external context section.
	PersonaOnly bool
}

// RenderAnswer builds the final answer input: one system prompt with the
// priority rules, then the conversation.
func RenderAnswer(ctx context.Context, v AnswerVars, history []*schema.Message) ([]*schema.Message, error) {
	if v.Persona == "" {
		v.Persona = DefaultPersona()
	}
	if v.Language == "" {
		v.Language = DefaultLanguage
	}
	if strings.TrimSpace(v.Context) == "" {
		v.Context = NoContextNotice
	}
	vars := map[string]any{
		"Persona":     v.Persona,
		"Context":     v.Context,
		"Language":    v.Language,
		"PersonaOnly": v.PersonaOnly,
	}
	return render(ctx, "answer", answerSystemPrompt, vars, history)
}

// FormatContext labels the retrieved blobs for the answer prompt.
func FormatContext(knowledgeBase, web string) string {
	var parts []string
	if kb := strings.TrimSpace(knowledgeBase); kb != "" {
		parts = append(parts, "== Contexto de Documentos Internos ==\n"+kb)
	}
	if w := strings.TrimSpace(web); w != "" {
		parts = append(parts, "== Resultados de la Web ==\n"+w)
	}
	return strings.Join(parts, "\n\n")
}
