package parsers

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/Chative-rag-assistant/server/internal/agent/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRouteDecision(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		route model.Route
		reply string
	}{
		{"canonical", `{"route": "retrieval"}`, model.RouteRetrieval, ""},
		{"legacy end with reply", `{"route": "end", "reply": "Hola, ¿en qué puedo ayudarte?"}`, model.RouteTerminate, "Hola, ¿en qué puedo ayudarte?"},
		{"persona alias", `{"route":"persona_answer"}`, model.RoutePersonaAnswer, ""},
		{"fenced", "```json\n{\"route\": \"answer\"}\n```", model.RouteDirectAnswer, ""},
		{"prose around", `Claro. {"route": "sql", "reply": null} listo`, model.RouteStructuredQuery, ""},
		{"brace in reply", `{"route": "end", "reply": "usa {llaves}"}`, model.RouteTerminate, "usa {llaves}"},
		{"upper case", `{"route": "RAG"}`, model.RouteRetrieval, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := ParseRouteDecision(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.route, d.Route)
			assert.Equal(t, tc.reply, d.Reply)
			assert.Equal(t, model.TierClassifier, d.Tier)
		})
	}
}

func TestParseRouteDecisionTruncatesOnRuneBoundary(t *testing.T) {
	long := "a" + strings.Repeat("é", 1500)
	d, err := ParseRouteDecision(`{"route": "end", "reply": "` + long + `"}`)
	require.NoError(t, err)

	assert.True(t, utf8.ValidString(d.Reply))
	assert.LessOrEqual(t, len(d.Reply), maxReplyLen)
	assert.Equal(t, maxReplyLen-1, len(d.Reply))
	assert.True(t, strings.HasPrefix(long, d.Reply))
}

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "hola", truncateUTF8("hola", 10))
	assert.Equal(t, "ho", truncateUTF8("hola", 2))
	assert.Equal(t, "a", truncateUTF8("añ", 2))
	assert.Equal(t, "", truncateUTF8("ñ", 1))
	assert.Equal(t, "año", truncateUTF8("año", 4))
}

func TestParseRouteDecisionErrors(t *testing.T) {
	for _, in := range []string{
		"",
		"retrieval",
		`{"route": "shopping"}`,
		`{"route": 3}`,
		`{"route": "rag"`,
		strings.Repeat("x", maxContentLen+1),
	} {
		_, err := ParseRouteDecision(in)
		assert.Error(t, err, in)
	}
}

func TestExtractSQL(t *testing.T) {
	cases := map[string]string{
		"```sql\nSELECT * FROM datos;\n```":                       "SELECT * FROM datos;",
		"Aquí está:\n```SQL\nselect count(*) from datos\n```\nFin": "select count(*) from datos",
		"```\nSELECT 1\n```":                                       "SELECT 1",
		"La consulta es SELECT area FROM datos":                    "SELECT area FROM datos",
		"  SELECT 1  ":                                             "SELECT 1",
		"no tengo consulta":                                        "no tengo consulta",
	}
	for in, want := range cases {
		assert.Equal(t, want, ExtractSQL(in), in)
	}
}
