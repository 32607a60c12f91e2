package retrieval

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"
)

// StaticSearcher scores an in-memory set of passages by shared words.
type StaticSearcher struct {
	passages []string
	index    []map[string]struct{}
	topK     int
}

func NewStaticSearcher(passages []string, topK int) *StaticSearcher {
	if topK <= 0 {
		topK = 3
	}
	s := &StaticSearcher{topK: topK}
	for _, p := range passages {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		s.passages = append(s.passages, p)
		s.index = append(s.index, wordSet(p))
	}
	return s
}

// LoadStaticSearcher reads passages separated by blank lines.
func LoadStaticSearcher(path string, topK int) (*StaticSearcher, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge file: %w", err)
	}
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	return NewStaticSearcher(strings.Split(text, "\n\n"), topK), nil
}

func (s *StaticSearcher) Search(ctx context.Context, query string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	words := wordSet(query)
	if len(words) == 0 {
		return "", ErrNoResults
	}

	type hit struct {
		idx   int
		score int
	}
	var hits []hit
	for i, idx := range s.index {
		score := 0
		for w := range words {
			if _, ok := idx[w]; ok {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{i, score})
		}
	}
	if len(hits) == 0 {
		return "", ErrNoResults
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if len(hits) > s.topK {
		hits = hits[:s.topK]
	}

	chunks := make([]string, len(hits))
	for i, h := range hits {
		chunks[i] = s.passages[h.idx]
	}
	return joinChunks(chunks), nil
}

// wordSet keeps lowercased words of at least three runes.
func wordSet(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) >= 3 {
			set[w] = struct{}{}
		}
	}
	return set
}
