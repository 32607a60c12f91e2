package model

import "strings"

// Route selects the branch that handles a turn.
type Route string

const (
	RouteRetrieval       Route = "retrieval"
	RouteStructuredQuery Route = "structured-query"
	RouteDirectAnswer    Route = "direct-answer"
	RoutePersonaAnswer   Route = "persona-answer"
	RouteTerminate       Route = "terminate"
)

// Routes lists the closed set in dispatch order.
var Routes = []Route{
	RouteRetrieval,
	RouteStructuredQuery,
	RouteDirectAnswer,
	RoutePersonaAnswer,
	RouteTerminate,
}

// legacy names still produced by older classifier prompts
var routeAliases = map[string]Route{
	"rag":            RouteRetrieval,
	"sql":            RouteStructuredQuery,
	"structured":     RouteStructuredQuery,
	"answer":         RouteDirectAnswer,
	"persona_answer": RoutePersonaAnswer,
	"persona":        RoutePersonaAnswer,
	"end":            RouteTerminate,
}

func (r Route) String() string {
	return string(r)
}

// Valid reports whether r belongs to the closed route set.
func (r Route) Valid() bool {
	for _, v := range Routes {
		if r == v {
			return true
		}
	}
	return false
}

// ParseRoute accepts canonical names and legacy aliases, ignoring case.
func ParseRoute(s string) (Route, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if r := Route(strings.ReplaceAll(s, "_", "-")); r.Valid() {
		return r, true
	}
	if r, ok := routeAliases[s]; ok {
		return r, true
	}
	return "", false
}

// RouteTier names the router tier that produced a decision.
type RouteTier string

const (
	TierHint       RouteTier = "hint"
	TierKeyword    RouteTier = "keyword"
	TierClassifier RouteTier = "classifier"
	TierFallback   RouteTier = "fallback"
)

// RouteDecision is the router output. Reply is only meaningful for RouteTerminate.
type RouteDecision struct {
	Route Route     `json:"route"`
	Reply string    `json:"reply,omitempty"`
	Tier  RouteTier `json:"-"`
}
