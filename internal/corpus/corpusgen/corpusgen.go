// Package corpusgen builds synthetic corpora with a known latent topic
// structure. Each topic draws a term distribution from a Dirichlet prior,
// each document draws a topic mixture and a Poisson length, and every token
// is sampled topic-first. The output feeds benchmarks and integration tests
// that need corpora of controlled size and separability.
package corpusgen

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/topicmine/platform/internal/corpus"
)

// Config parameterizes a synthetic corpus.
type Config struct {
	Topics    int
	VocabSize int
	Docs      int

	// AvgDocLen is the Poisson mean of document lengths. Draws of zero are
	// bumped to one token.
	AvgDocLen float64

	// TopicAlpha is the Dirichlet concentration of per-document topic
	// mixtures. Small values give documents dominated by few topics.
	TopicAlpha float64

	// TermBeta is the Dirichlet concentration of per-topic term
	// distributions. Small values give topics with sparse vocabularies.
	TermBeta float64

	Seed uint64
}

func (cfg Config) validate() error {
	if cfg.Topics < 1 {
		return fmt.Errorf("topics must be positive, got %d", cfg.Topics)
	}
	if cfg.VocabSize < cfg.Topics {
		return fmt.Errorf("vocab size must be at least the topic count, got %d", cfg.VocabSize)
	}
	if cfg.Docs < 1 {
		return fmt.Errorf("doc count must be positive, got %d", cfg.Docs)
	}
	if cfg.AvgDocLen <= 0 {
		return fmt.Errorf("average doc length must be positive, got %g", cfg.AvgDocLen)
	}
	if cfg.TopicAlpha <= 0 || cfg.TermBeta <= 0 {
		return fmt.Errorf("dirichlet concentrations must be positive, got alpha=%g beta=%g", cfg.TopicAlpha, cfg.TermBeta)
	}
	return nil
}

// Generate samples a corpus into an in-memory forward index. The same
// Config, including the seed, always yields the same corpus.
func Generate(cfg Config) (*corpus.Memory, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	src := rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)
	rng := rand.New(src)

	topicTerm := make([][]float64, cfg.Topics)
	for t := range topicTerm {
		topicTerm[t] = dirichlet(cfg.VocabSize, cfg.TermBeta, src)
	}

	poisson := distuv.Poisson{Lambda: cfg.AvgDocLen, Src: src}

	tokens := make([]string, cfg.VocabSize)
	for w := range tokens {
		tokens[w] = fmt.Sprintf("w%05d", w)
	}

	mem := corpus.NewMemory()
	terms := make([]string, 0, int(cfg.AvgDocLen)*2)
	for d := 0; d < cfg.Docs; d++ {
		theta := dirichlet(cfg.Topics, cfg.TopicAlpha, src)
		length := int(poisson.Rand())
		if length < 1 {
			length = 1
		}
		terms = terms[:0]
		for i := 0; i < length; i++ {
			t := categorical(theta, rng)
			w := categorical(topicTerm[t], rng)
			terms = append(terms, tokens[w])
		}
		if _, err := mem.AddDocument(fmt.Sprintf("synthetic-%05d", d), terms); err != nil {
			return nil, fmt.Errorf("adding synthetic document %d: %w", d, err)
		}
	}
	return mem, nil
}

// dirichlet draws an n-dimensional symmetric Dirichlet sample by normalizing
// Gamma(concentration, 1) draws.
func dirichlet(n int, concentration float64, src rand.Source) []float64 {
	gamma := distuv.Gamma{Alpha: concentration, Beta: 1, Src: src}
	sample := make([]float64, n)
	var total float64
	for i := range sample {
		sample[i] = gamma.Rand()
		total += sample[i]
	}
	if total == 0 {
		// All draws underflowed; fall back to uniform.
		for i := range sample {
			sample[i] = 1 / float64(n)
		}
		return sample
	}
	for i := range sample {
		sample[i] /= total
	}
	return sample
}

// categorical draws an index proportional to the given weights, which must
// sum to one.
func categorical(weights []float64, rng *rand.Rand) int {
	u := rng.Float64()
	var cum float64
	for i, w := range weights {
		cum += w
		if u < cum {
			return i
		}
	}
	return len(weights) - 1
}
