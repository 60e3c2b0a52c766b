package corpusgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topicmine/platform/internal/corpus"
)

func baseConfig() Config {
	return Config{
		Topics:     4,
		VocabSize:  200,
		Docs:       25,
		AvgDocLen:  40,
		TopicAlpha: 0.1,
		TermBeta:   0.05,
		Seed:       99,
	}
}

func TestGenerateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero topics", func(c *Config) { c.Topics = 0 }},
		{"vocab smaller than topics", func(c *Config) { c.VocabSize = 2 }},
		{"zero docs", func(c *Config) { c.Docs = 0 }},
		{"zero length", func(c *Config) { c.AvgDocLen = 0 }},
		{"zero alpha", func(c *Config) { c.TopicAlpha = 0 }},
		{"negative beta", func(c *Config) { c.TermBeta = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig()
			tc.mutate(&cfg)
			_, err := Generate(cfg)
			assert.Error(t, err)
		})
	}
}

func TestGenerateShape(t *testing.T) {
	cfg := baseConfig()
	mem, err := Generate(cfg)
	require.NoError(t, err)

	assert.Equal(t, uint32(cfg.Docs), mem.NumDocs())
	assert.LessOrEqual(t, mem.NumTerms(), uint32(cfg.VocabSize))
	assert.GreaterOrEqual(t, mem.TotalTokens(), uint64(cfg.Docs))

	for d := uint32(0); d < mem.NumDocs(); d++ {
		size, err := mem.DocSize(corpus.DocID(d))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, size, uint32(1))

		postings, err := mem.Postings(corpus.DocID(d))
		require.NoError(t, err)
		var total uint32
		for _, p := range postings {
			assert.Less(t, uint32(p.Term), mem.NumTerms())
			total += p.Count
		}
		assert.Equal(t, size, total)
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	cfg := baseConfig()
	first, err := Generate(cfg)
	require.NoError(t, err)
	second, err := Generate(cfg)
	require.NoError(t, err)

	require.Equal(t, first.NumDocs(), second.NumDocs())
	assert.Equal(t, first.TotalTokens(), second.TotalTokens())
	for d := uint32(0); d < first.NumDocs(); d++ {
		a, err := first.Postings(corpus.DocID(d))
		require.NoError(t, err)
		b, err := second.Postings(corpus.DocID(d))
		require.NoError(t, err)
		assert.Equal(t, a, b, "doc %d", d)
	}
}

func TestGenerateSeedsDiffer(t *testing.T) {
	cfg := baseConfig()
	first, err := Generate(cfg)
	require.NoError(t, err)

	cfg.Seed = 100
	second, err := Generate(cfg)
	require.NoError(t, err)

	same := first.TotalTokens() == second.TotalTokens()
	if same {
		for d := uint32(0); d < first.NumDocs() && same; d++ {
			a, _ := first.Postings(corpus.DocID(d))
			b, _ := second.Postings(corpus.DocID(d))
			if len(a) != len(b) {
				same = false
				break
			}
			for i := range a {
				if a[i] != b[i] {
					same = false
					break
				}
			}
		}
	}
	assert.False(t, same, "different seeds should produce different corpora")
}
