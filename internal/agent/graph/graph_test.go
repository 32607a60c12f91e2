package graph

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-rag-assistant/server/internal/agent/dataset"
	"github.com/Chative-rag-assistant/server/internal/agent/graph/conversations"
	"github.com/Chative-rag-assistant/server/internal/agent/graph/nodes"
	"github.com/Chative-rag-assistant/server/internal/agent/model"
	"github.com/Chative-rag-assistant/server/internal/agent/repo"
	"github.com/Chative-rag-assistant/server/internal/agent/retrieval"
	"github.com/Chative-rag-assistant/server/internal/agent/router"
	errx "github.com/Chative-rag-assistant/server/internal/core/error"
)

const sampleCSV = `N,Área,Estado,Defecto
1,Calidad,abierto,si
2,Producción,cerrado,no
3,Calidad,abierto,si
`

const apology = "Lo siento, no pude obtener esos datos."

// fakeChatModel replies through a script and records every input.
type fakeChatModel struct {
	mu    sync.Mutex
	calls [][]*schema.Message
	reply func(call int, msgs []*schema.Message) (string, error)
}

func scripted(replies ...string) *fakeChatModel {
	return &fakeChatModel{reply: func(call int, _ []*schema.Message) (string, error) {
		if call < len(replies) {
			return replies[call], nil
		}
		return replies[len(replies)-1], nil
	}}
}

func failing(err error) *fakeChatModel {
	return &fakeChatModel{reply: func(int, []*schema.Message) (string, error) { return "", err }}
}

func (f *fakeChatModel) Generate(ctx context.Context, msgs []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, msgs)
	f.mu.Unlock()

	content, err := f.reply(n, msgs)
	if err != nil {
		return nil, err
	}
	out := schema.AssistantMessage(content, nil)
	out.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 1000, CompletionTokens: 100, TotalTokens: 1100}}
	return out, nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func (f *fakeChatModel) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeChatModel) Call(i int) []*schema.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

type harness struct {
	engine    *Engine
	store     *repo.MemorySessionStore
	router    *fakeChatModel
	query     *fakeChatModel
	answer    *fakeChatModel
	searches  atomic.Int32
	webCalls  atomic.Int32
	kbContext string
	webResult string
}

type harnessOpts struct {
	router, query, answer *fakeChatModel
	kbContext             string
	webResult             string
	withWeb               bool
	dataset               nodes.Dataset
}

func newHarness(t *testing.T, o harnessOpts) *harness {
	t.Helper()
	ctx := context.Background()

	tbl, err := dataset.ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	ds, err := dataset.New(ctx, tbl, dataset.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })

	h := &harness{
		store:     repo.NewMemorySessionStore(0),
		router:    o.router,
		query:     o.query,
		answer:    o.answer,
		kbContext: o.kbContext,
		webResult: o.webResult,
	}
	if h.router == nil {
		h.router = scripted(`{"route": "retrieval"}`)
	}
	if h.query == nil {
		h.query = scripted("SELECT 1")
	}
	if h.answer == nil {
		h.answer = scripted("respuesta")
	}

	mm := conversations.NewMessagesManager(h.store, model.ConversationConfig{RouterMaxTurns: 6, HistoryMaxTurns: 20})
	gc := &GraphConfig{
		ChatModels: &nodes.ChatModels{
			Name:   model.ModelGeminiFlash,
			Router: h.router,
			Query:  h.query,
			Answer: h.answer,
		},
		MessagesManager: mm,
		Keywords:        router.NewKeywordSet(ds.Keywords(), []string{"cuántos", "total"}),
		Dataset:         ds,
		Table:           ds.Table(),
		Retriever: retrieval.SearcherFunc(func(ctx context.Context, q string) (string, error) {
			h.searches.Add(1)
			if h.kbContext == "" {
				return "", retrieval.ErrNoResults
			}
			return h.kbContext, nil
		}),
		Router: model.RouterConfig{DefaultReply: "¿Algo más?"},
		Query:  model.QueryConfig{MaxAttempts: 3, ApologyMessage: apology},
		Answer: nodes.AnswerConfig{Persona: "Soy el asistente de pruebas.", Language: "español", FallbackReply: "sin respuesta"},
	}
	if o.dataset != nil {
		gc.Dataset = o.dataset
	}
	if o.withWeb {
		gc.WebSearch = retrieval.SearcherFunc(func(ctx context.Context, q string) (string, error) {
			h.webCalls.Add(1)
			return h.webResult, nil
		})
	}

	runnable, err := BuildGraph(ctx, gc)
	require.NoError(t, err)
	h.engine, err = NewEngine(map[model.ModelName]compose.Runnable[model.TurnInput, *model.TurnResult]{
		model.ModelGeminiFlash: runnable,
	}, model.ModelGeminiFlash, mm)
	require.NoError(t, err)
	return h
}

func (h *harness) ask(t *testing.T, sessionID, question string) *model.QueryResponse {
	t.Helper()
	resp, err := h.engine.Invoke(context.Background(), model.QueryInput{Question: question, SessionID: sessionID})
	require.NoError(t, err)
	return resp
}

func (h *harness) history(t *testing.T, sessionID string) []*schema.Message {
	t.Helper()
	s, err := h.store.Load(context.Background(), sessionID)
	require.NoError(t, err)
	return s.Messages
}

func systemPrompt(msgs []*schema.Message) string {
	if len(msgs) == 0 || msgs[0].Role != schema.System {
		return ""
	}
	return msgs[0].Content
}

func TestGreetingTerminates(t *testing.T) {
	h := newHarness(t, harnessOpts{router: scripted(`{"route": "terminate", "reply": "¡Hola! ¿En qué puedo ayudarte?"}`)})

	resp := h.ask(t, "s1", "Hola")
	assert.Equal(t, "¡Hola! ¿En qué puedo ayudarte?", resp.Answer)
	assert.Equal(t, model.RouteTerminate, resp.Route)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, model.ModelGeminiFlash, resp.Model)

	assert.Equal(t, 1, h.router.Calls())
	assert.Zero(t, h.query.Calls())
	assert.Zero(t, h.answer.Calls())
	assert.Zero(t, h.searches.Load())

	hist := h.history(t, "s1")
	require.Len(t, hist, 2)
	assert.Equal(t, schema.User, hist[0].Role)
	assert.Equal(t, "Hola", hist[0].Content)
	assert.Equal(t, resp.Answer, hist[1].Content)
}

func TestTerminateWithoutReplyUsesDefault(t *testing.T) {
	h := newHarness(t, harnessOpts{router: scripted(`{"route": "end"}`)})

	resp := h.ask(t, "s1", "gracias")
	assert.Equal(t, "¿Algo más?", resp.Answer)
}

func TestPersonaAnswerWithholdsContext(t *testing.T) {
	h := newHarness(t, harnessOpts{
		router:    scripted(`{"route": "persona-answer"}`),
		answer:    scripted("Soy un asistente."),
		kbContext: "no debería usarse",
	})

	resp := h.ask(t, "s1", "¿Quién eres?")
	assert.Equal(t, "Soy un asistente.", resp.Answer)
	assert.Equal(t, model.RoutePersonaAnswer, resp.Route)
	assert.Zero(t, h.searches.Load())

	require.Equal(t, 1, h.answer.Calls())
	sys := systemPrompt(h.answer.Call(0))
	assert.Contains(t, sys, "Soy el asistente de pruebas.")
	assert.NotContains(t, sys, "CONTEXTO EXTERNO:")
}

func TestKeywordRoutesToQueryWithoutClassifier(t *testing.T) {
	h := newHarness(t, harnessOpts{
		query:  scripted("```sql\nSELECT COUNT(*) AS total FROM datos WHERE estado = 'abierto'\n```"),
		answer: scripted("Hay 2 registros abiertos."),
	})

	resp := h.ask(t, "s1", "¿Cuántos registros tienen estado abierto?")
	assert.Equal(t, "Hay 2 registros abiertos.", resp.Answer)
	assert.Equal(t, model.RouteStructuredQuery, resp.Route)

	assert.Zero(t, h.router.Calls())
	assert.Equal(t, 1, h.query.Calls())
	assert.Contains(t, systemPrompt(h.query.Call(0)), `CREATE TABLE "datos"`)

	require.Equal(t, 1, h.answer.Calls())
	assert.Contains(t, systemPrompt(h.answer.Call(0)), `"total": 2`)
}

func TestQueryRetriesAfterFailure(t *testing.T) {
	h := newHarness(t, harnessOpts{
		query:  scripted("SELECT nope FROM datos", "SELECT COUNT(*) AS total FROM datos"),
		answer: scripted("Hay 3 registros."),
	})

	resp, err := h.engine.Invoke(context.Background(), model.QueryInput{Question: "dame el total de registros", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "Hay 3 registros.", resp.Answer)

	require.Equal(t, 2, h.query.Calls())
	retry := h.query.Call(1)
	last := retry[len(retry)-1]
	assert.Equal(t, schema.User, last.Role)
	assert.Contains(t, last.Content, "El intento anterior falló con el error")
	assert.Contains(t, last.Content, "nope")
}

func TestQueryApologizesWithinBound(t *testing.T) {
	var observed *model.TurnResult
	h := newHarness(t, harnessOpts{query: scripted("DROP TABLE datos")})
	h.engine.observers = append(h.engine.observers, func(_ model.QueryInput, r *model.TurnResult, _ time.Duration, err error) {
		observed = r
	})

	resp := h.ask(t, "s1", "¿cuántos registros hay en total?")
	assert.Equal(t, apology, resp.Answer)
	assert.Equal(t, 3, h.query.Calls())
	assert.Zero(t, h.answer.Calls())

	require.NotNil(t, observed)
	assert.True(t, observed.QueryFailed)
	assert.Equal(t, 3, observed.QueryAttempts)

	// the forbidden statement never reached the table
	h.query.reply = func(int, []*schema.Message) (string, error) { return "SELECT COUNT(*) AS c FROM datos", nil }
	h.answer.reply = func(_ int, msgs []*schema.Message) (string, error) { return systemPrompt(msgs), nil }
	resp = h.ask(t, "s1", "dame el total")
	assert.Contains(t, resp.Answer, `"c": 3`)
}

func TestQueryModelErrorCountsAsAttempt(t *testing.T) {
	h := newHarness(t, harnessOpts{query: failing(errors.New("upstream down"))})

	resp := h.ask(t, "s1", "total de registros")
	assert.Equal(t, apology, resp.Answer)
	assert.Equal(t, 3, h.query.Calls())
}

type brokenDataset struct{ nodes.Dataset }

func (brokenDataset) Schema(context.Context) (string, error) {
	return "", errors.New("table datos is gone")
}

func TestSchemaFailureApologizes(t *testing.T) {
	h := newHarness(t, harnessOpts{dataset: brokenDataset{}})

	resp := h.ask(t, "s1", "¿cuántos registros hay en total?")
	assert.Equal(t, apology, resp.Answer)
	assert.Equal(t, model.RouteStructuredQuery, resp.Route)
	assert.Zero(t, h.query.Calls())
	assert.Zero(t, h.answer.Calls())
	assert.Len(t, h.history(t, "s1"), 2)
}

// the dataset and the catalog share one process; a second "sqlite"
// registration panics at init
func TestSqliteDriverRegisteredOnce(t *testing.T) {
	n := 0
	for _, d := range sql.Drivers() {
		if d == "sqlite" {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestRetrievalContextReachesAnswer(t *testing.T) {
	h := newHarness(t, harnessOpts{
		router:    scripted(`{"route": "rag"}`),
		answer:    scripted("JiraBuddy es un bot."),
		kbContext: "Archivo: jira.md\nJiraBuddy es un bot de soporte.",
	})

	resp := h.ask(t, "s1", "¿Qué es JiraBuddy?")
	assert.Equal(t, "JiraBuddy es un bot.", resp.Answer)
	assert.Equal(t, model.RouteRetrieval, resp.Route)
	assert.EqualValues(t, 1, h.searches.Load())
	assert.Contains(t, systemPrompt(h.answer.Call(0)), "JiraBuddy es un bot de soporte.")
}

func TestInvalidClassifierOutputFallsBackToRetrieval(t *testing.T) {
	h := newHarness(t, harnessOpts{router: scripted("no sé qué responder")})

	resp := h.ask(t, "s1", "háblame del proyecto")
	assert.Equal(t, model.RouteRetrieval, resp.Route)
	assert.EqualValues(t, 1, h.searches.Load())
	assert.Contains(t, systemPrompt(h.answer.Call(0)), "No se encontró contexto externo relevante.")
}

func TestWebFallbackWhenKnowledgeBaseIsEmpty(t *testing.T) {
	h := newHarness(t, harnessOpts{withWeb: true, webResult: "Go es un lenguaje."})

	h.ask(t, "s1", "¿qué es Go?")
	assert.EqualValues(t, 1, h.webCalls.Load())
	assert.Contains(t, systemPrompt(h.answer.Call(0)), "== Resultados de la Web ==")

	h.kbContext = "Go es el lenguaje de la casa."
	h.ask(t, "s1", "¿qué es Go?")
	assert.EqualValues(t, 1, h.webCalls.Load())
}

func TestEmptyAnswerUsesFallback(t *testing.T) {
	h := newHarness(t, harnessOpts{router: scripted(`{"route": "direct-answer"}`), answer: scripted("   ")})

	resp := h.ask(t, "s1", "¿qué te pregunté?")
	assert.Equal(t, "sin respuesta", resp.Answer)
	assert.Zero(t, h.searches.Load())
}

func TestHistoryIsAppendOnly(t *testing.T) {
	h := newHarness(t, harnessOpts{
		router: scripted(`{"route": "terminate", "reply": "Hola"}`, `{"route": "direct-answer"}`),
		answer: scripted("Me dijiste hola."),
	})

	h.ask(t, "s1", "hola")
	first := h.history(t, "s1")
	require.Len(t, first, 2)

	h.ask(t, "s1", "¿qué te dije?")
	second := h.history(t, "s1")
	require.Len(t, second, 4)
	for i := range first {
		assert.Equal(t, first[i].Role, second[i].Role)
		assert.Equal(t, first[i].Content, second[i].Content)
	}
	assert.Equal(t, "Me dijiste hola.", second[3].Content)

	// the second turn saw the first turn as history
	answerInput := h.answer.Call(0)
	assert.Equal(t, "hola", answerInput[1].Content)
}

func TestSessionsAreIsolated(t *testing.T) {
	h := newHarness(t, harnessOpts{router: scripted(`{"route": "direct-answer"}`)})

	h.ask(t, "a", "me llamo Ana")
	h.ask(t, "b", "¿cómo me llamo?")

	assert.Len(t, h.history(t, "a"), 2)
	assert.Len(t, h.history(t, "b"), 2)
	for _, m := range h.answer.Call(1) {
		assert.NotContains(t, m.Content, "Ana")
	}
}

func TestGeneratesSessionID(t *testing.T) {
	h := newHarness(t, harnessOpts{router: scripted(`{"route": "terminate"}`)})
	h.engine.newID = func() string { return "generated" }

	resp := h.ask(t, "", "hola")
	assert.Equal(t, "generated", resp.SessionID)
	assert.Len(t, h.history(t, "generated"), 2)
}

func TestUnknownModelUsesDefault(t *testing.T) {
	h := newHarness(t, harnessOpts{router: scripted(`{"route": "terminate"}`)})

	resp, err := h.engine.Invoke(context.Background(), model.QueryInput{Question: "hola", SessionID: "s1", Model: "gpt-unknown"})
	require.NoError(t, err)
	assert.Equal(t, model.ModelGeminiFlash, resp.Model)
}

func TestEmptyQuestionIsBadRequest(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	_, err := h.engine.Invoke(context.Background(), model.QueryInput{Question: "  ", SessionID: "s1"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, errx.StatusOf(err))
	assert.Zero(t, h.router.Calls())
}

func TestAnswerModelFailureCommitsNothing(t *testing.T) {
	h := newHarness(t, harnessOpts{router: scripted(`{"route": "direct-answer"}`), answer: failing(errors.New("boom"))})

	_, err := h.engine.Invoke(context.Background(), model.QueryInput{Question: "hola", SessionID: "s1"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, errx.StatusOf(err))
	assert.Empty(t, h.history(t, "s1"))
}

func TestCanceledContextCommitsNothing(t *testing.T) {
	h := newHarness(t, harnessOpts{router: scripted(`{"route": "terminate"}`)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.engine.Invoke(ctx, model.QueryInput{Question: "hola", SessionID: "s1"})
	require.Error(t, err)
	assert.Empty(t, h.history(t, "s1"))
}

func TestBuildGraphValidatesConfig(t *testing.T) {
	_, err := BuildGraph(context.Background(), nil)
	assert.Error(t, err)

	_, err = BuildGraph(context.Background(), &GraphConfig{ChatModels: &nodes.ChatModels{}})
	assert.Error(t, err)
}

func TestNewEngineValidates(t *testing.T) {
	mm := conversations.NewMessagesManager(repo.NewMemorySessionStore(0), model.ConversationConfig{})
	_, err := NewEngine(nil, model.ModelGeminiFlash, mm)
	assert.Error(t, err)
}
