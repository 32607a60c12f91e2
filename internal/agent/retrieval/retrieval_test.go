package retrieval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return f.vec, f.err
}

func TestVectorSearcherSearch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, filename, source, content FROM "documents" ORDER BY embedding <-> \$1 LIMIT \$2`).
		WithArgs(pgxmock.AnyArg(), 2).
		WillReturnRows(pgxmock.NewRows([]string{"id", "filename", "source", "content"}).
			AddRow(int64(1), "manual.pdf", "kb", "El proceso de inspección tiene tres etapas.").
			AddRow(int64(2), "faq.md", "kb", "  "))

	s := NewVectorSearcher(mock, fakeEmbedder{vec: []float32{0.1, 0.2}}, "", 2)
	out, err := s.Search(context.Background(), "¿cómo es la inspección?")
	require.NoError(t, err)
	assert.Contains(t, out, "Archivo: manual.pdf")
	assert.Contains(t, out, "tres etapas")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVectorSearcherNoRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT id`).
		WithArgs(pgxmock.AnyArg(), 4).
		WillReturnRows(pgxmock.NewRows([]string{"id", "filename", "source", "content"}))

	s := NewVectorSearcher(mock, fakeEmbedder{vec: []float32{1}}, "documents", 0)
	_, err = s.Search(context.Background(), "algo")
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestVectorSearcherErrors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewVectorSearcher(mock, fakeEmbedder{err: errors.New("quota")}, "", 1)
	_, err = s.Search(context.Background(), "algo")
	assert.ErrorContains(t, err, "quota")

	mock.ExpectQuery(`SELECT id`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))
	s = NewVectorSearcher(mock, fakeEmbedder{vec: []float32{1}}, "", 1)
	_, err = s.Search(context.Background(), "algo")
	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

type fakeModels struct {
	gotModel string
	gotCfg   *genai.EmbedContentConfig
	resp     *genai.EmbedContentResponse
}

func (f *fakeModels) EmbedContent(_ context.Context, model string, _ []*genai.Content, cfg *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.gotModel = model
	f.gotCfg = cfg
	return f.resp, nil
}

func TestGeminiEmbedder(t *testing.T) {
	models := &fakeModels{resp: &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: []float32{0.5, 0.25}}},
	}}
	e := newGeminiEmbedder(models, "", 768)

	vec, err := e.Embed(context.Background(), "hola")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, vec)
	assert.Equal(t, "gemini-embedding-001", models.gotModel)
	assert.Equal(t, "RETRIEVAL_QUERY", models.gotCfg.TaskType)
	assert.Equal(t, int32(768), *models.gotCfg.OutputDimensionality)

	models.resp = &genai.EmbedContentResponse{}
	_, err = e.Embed(context.Background(), "hola")
	assert.Error(t, err)
}

type fakeTool struct {
	out string
	err error
}

func (fakeTool) Name() string        { return "fake_search" }
func (fakeTool) Description() string { return "fake" }
func (f fakeTool) Call(context.Context, string) (string, error) {
	return f.out, f.err
}

func TestWebSearcher(t *testing.T) {
	out, err := NewWebSearcher(fakeTool{out: " resultado web "}).Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "resultado web", out)

	_, err = NewWebSearcher(fakeTool{out: "  "}).Search(context.Background(), "q")
	assert.ErrorIs(t, err, ErrNoResults)

	_, err = NewWebSearcher(fakeTool{err: errors.New("rate limited")}).Search(context.Background(), "q")
	assert.ErrorContains(t, err, "fake_search")
}

func TestNewWebSearcherFromConfig(t *testing.T) {
	s, err := NewWebSearcherFromConfig(Config{})
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = NewWebSearcherFromConfig(Config{WebProvider: "bing"})
	assert.Error(t, err)

	s, err = NewWebSearcherFromConfig(Config{WebProvider: "duckduckgo", WebMaxResults: 3})
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestStaticSearcher(t *testing.T) {
	s := NewStaticSearcher([]string{
		"La inspección visual se realiza cada turno.",
		"El área de calidad reporta defectos semanalmente.",
		"",
	}, 1)

	out, err := s.Search(context.Background(), "¿Quién reporta los defectos?")
	require.NoError(t, err)
	assert.Equal(t, "El área de calidad reporta defectos semanalmente.", out)

	_, err = s.Search(context.Background(), "xyz")
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestLoadStaticSearcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.txt")
	require.NoError(t, os.WriteFile(path, []byte("primer pasaje sobre turnos\r\n\r\nsegundo pasaje sobre calidad"), 0o600))

	s, err := LoadStaticSearcher(path, 2)
	require.NoError(t, err)
	out, err := s.Search(context.Background(), "calidad")
	require.NoError(t, err)
	assert.Equal(t, "segundo pasaje sobre calidad", out)
}
