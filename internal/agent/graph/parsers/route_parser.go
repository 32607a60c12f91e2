package parsers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/Chative-rag-assistant/server/internal/agent/model"
	errx "github.com/Chative-rag-assistant/server/internal/core/error"
	logx "github.com/Chative-rag-assistant/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 16 * 1024
	maxReplyLen   = 2 * 1024
	maxErrSnippet = 200
)

type rawDecision struct {
	Route string  `json:"route"`
	Reply *string `json:"reply"`
}

// ParseRouteDecision decodes the classifier's JSON answer. Surrounding prose
// and code fences are tolerated; anything outside the closed route set is an error.
func ParseRouteDecision(content string) (decision *model.RouteDecision, err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "route_parser").Msgf("panic recovered: %v", r)
			err = errx.New(fmt.Errorf("route parser panic"), http.StatusInternalServerError, errx.SystemErrorMessage)
			decision = nil
		}
	}()

	if len(content) > maxContentLen {
		return nil, fmt.Errorf("route decision too large (%d bytes)", len(content))
	}
	if !utf8.ValidString(content) {
		return nil, fmt.Errorf("route decision invalid utf8")
	}

	obj, ok := firstJSONObject(content)
	if !ok {
		return nil, fmt.Errorf("no json object in route decision: %s", safeSnippet(content))
	}

	var raw rawDecision
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, fmt.Errorf("decode route decision: %w", err)
	}
	route, ok := model.ParseRoute(raw.Route)
	if !ok {
		return nil, fmt.Errorf("unknown route %q", safeSnippet(raw.Route))
	}

	decision = &model.RouteDecision{Route: route, Tier: model.TierClassifier}
	if raw.Reply != nil {
		decision.Reply = truncateUTF8(strings.TrimSpace(*raw.Reply), maxReplyLen)
	}
	return decision, nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// firstJSONObject returns the first balanced {...} span, skipping braces
// inside string literals.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth, inString, escaped := 0, false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func safeSnippet(s string) string {
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet] + "..."
}
