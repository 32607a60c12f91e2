package model

// ================ Config ================
type ConversationConfig struct {
	TTL string `envconfig:"CONVERSATION_TTL" default:"24h"`
	// RouterMaxTurns bounds the history handed to the route classifier.
	RouterMaxTurns int `envconfig:"CONVERSATION_ROUTER_MAX_TURNS" default:"6"`
	// HistoryMaxTurns bounds the history handed to the generators.
	HistoryMaxTurns int `envconfig:"CONVERSATION_HISTORY_MAX_TURNS" default:"20"`
}

type LLMConfig struct {
	DefaultModel  string   `envconfig:"LLM_DEFAULT_MODEL" default:"gemini-2.5-flash"`
	Models        []string `envconfig:"LLM_MODELS" default:"gemini-2.5-flash,gemini-2.5-flash-lite"`
	GeminiAPIKey  string   `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL string   `envconfig:"GEMINI_BASE_URL"`
	// OpenAI-compatible endpoint (Cerebras by default) for non-Gemini models.
	OpenAIAPIKey  string `envconfig:"OPENAI_COMPAT_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_COMPAT_BASE_URL" default:"https://api.cerebras.ai/v1"`
}

type RouterModelConfig struct {
	MaxTokens   int     `envconfig:"ROUTER_MAX_TOKENS" default:"512"`
	Temperature float32 `envconfig:"ROUTER_TEMPERATURE" default:"0"`
}

type QueryModelConfig struct {
	MaxTokens   int     `envconfig:"SQL_MAX_TOKENS" default:"1024"`
	Temperature float32 `envconfig:"SQL_TEMPERATURE" default:"0"`
}

type AnswerModelConfig struct {
	MaxTokens   int     `envconfig:"ANSWER_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"ANSWER_TEMPERATURE" default:"0.2"`
}

type RouterConfig struct {
	ExtraKeywords []string `envconfig:"ROUTER_EXTRA_KEYWORDS" default:"defecto,hallazgo,conteo,contar,cuántos,lista,dame,resumen,total,promedio"`
	DefaultReply  string   `envconfig:"ROUTER_DEFAULT_REPLY" default:"Claro, ¿hay algo más en lo que pueda ayudarte?"`
}

type QueryConfig struct {
	MaxAttempts    int    `envconfig:"SQL_MAX_ATTEMPTS" default:"3"`
	ApologyMessage string `envconfig:"SQL_APOLOGY_MESSAGE" default:"Lo siento, no pude obtener esos datos en este momento. ¿Podrías reformular tu pregunta?"`
}

type AnswerConfig struct {
	Language      string `envconfig:"ANSWER_LANGUAGE" default:"español"`
	FallbackReply string `envconfig:"ANSWER_FALLBACK_REPLY" default:"Lo siento, no pude generar una respuesta en este momento."`
}

const DefaultMaxQueryAttempts = 3

// NormalizeMaxAttempts returns a sane default when the configured bound is invalid.
func NormalizeMaxAttempts(n int) int {
	if n <= 0 {
		return DefaultMaxQueryAttempts
	}
	return n
}
