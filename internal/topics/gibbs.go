// Package topics implements collapsed Gibbs sampling for Latent Dirichlet
// Allocation over a forward-indexed corpus. The sampler estimates, per token
// occurrence, a topic assignment whose sufficient statistics induce the
// posterior document-topic distribution θ and topic-term distribution φ
// under symmetric Dirichlet priors α and β.
//
// The chain is inherently sequential at per-token granularity: every resample
// conditions on all other current assignments. The sampler therefore runs
// single-threaded and owns all of its state; the forward index is borrowed
// read-only.
package topics

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/topicmine/platform/internal/corpus"
)

// DefaultConvergence is the relative log-likelihood change under which a
// chain is declared converged when the caller passes a non-positive
// threshold to Run.
const DefaultConvergence = 1e-6

// State tracks a sampler through its lifecycle. A fresh sampler becomes
// Initialized after its first sweep (assignment without decrements), moves
// through Iterating on every later sweep, and settles in Converged or
// Exhausted. No transition leaves Iterating backward.
type State uint8

const (
	StateFresh State = iota
	StateInitialized
	StateIterating
	StateConverged
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateInitialized:
		return "initialized"
	case StateIterating:
		return "iterating"
	case StateConverged:
		return "converged"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Config parameterizes a Sampler. Topics, Alpha, and Beta are immutable
// after construction.
type Config struct {
	// Topics is K, the number of latent topics. At least 1.
	Topics int

	// Alpha is the symmetric Dirichlet prior on document-topic mixtures.
	Alpha float64

	// Beta is the symmetric Dirichlet prior on topic-term distributions.
	Beta float64

	// Seed seeds the sampler's PRNG. Zero draws a seed from OS entropy;
	// runs that must be reproducible pass any nonzero value.
	Seed int64

	// Progress, when non-nil, is called after the initialization sweep
	// (iteration 0) and after every completed iteration with the current
	// log-likelihood. It is a reporting side channel and must not mutate
	// the sampler.
	Progress func(iteration int, logLikelihood float64)
}

// Sampler is a collapsed Gibbs sampler for LDA. Construct with NewSampler,
// advance with Run, read results through the count accessors or Snapshot.
// A Sampler is not safe for concurrent use.
type Sampler struct {
	idx corpus.ForwardIndex

	k      int
	v      uint32
	d      uint32
	alpha  float64
	beta   float64
	vBeta  float64 // V·β
	kAlpha float64 // K·α

	counts      *countTables
	assignments [][]TopicID
	docs        []corpus.DocID
	sizes       []uint32 // indexed by DocID, fixed at initialization

	rng     *rand.Rand
	weights []float64 // kernel scratch, length K

	state      State
	iterations int
	likelihood float64
	failed     bool

	progress func(int, float64)
	logger   *slog.Logger
}

// NewSampler validates cfg against the index and returns a fresh sampler.
// The index is borrowed for the sampler's lifetime and is never written to.
func NewSampler(idx corpus.ForwardIndex, cfg Config) (*Sampler, error) {
	if idx == nil {
		return nil, fmt.Errorf("%w: nil forward index", ErrInvalidConfig)
	}
	if cfg.Topics < 1 {
		return nil, fmt.Errorf("%w: topic count %d, need at least 1", ErrInvalidConfig, cfg.Topics)
	}
	if cfg.Alpha <= 0 {
		return nil, fmt.Errorf("%w: alpha %g, need > 0", ErrInvalidConfig, cfg.Alpha)
	}
	if cfg.Beta <= 0 {
		return nil, fmt.Errorf("%w: beta %g, need > 0", ErrInvalidConfig, cfg.Beta)
	}
	v := idx.NumTerms()
	if v < 1 {
		return nil, fmt.Errorf("%w: empty vocabulary", ErrInvalidConfig)
	}
	d := idx.NumDocs()
	if d < 1 {
		return nil, fmt.Errorf("%w: empty corpus", ErrInvalidConfig)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = entropySeed()
	}
	return &Sampler{
		idx:      idx,
		k:        cfg.Topics,
		v:        v,
		d:        d,
		alpha:    cfg.Alpha,
		beta:     cfg.Beta,
		vBeta:    float64(v) * cfg.Beta,
		kAlpha:   float64(cfg.Topics) * cfg.Alpha,
		counts:   newCountTables(),
		rng:      rand.New(rand.NewSource(seed)),
		weights:  make([]float64, cfg.Topics),
		state:    StateFresh,
		progress: cfg.Progress,
		logger:   slog.Default().With("component", "gibbs-sampler"),
	}, nil
}

// Run advances the chain by at most maxIters full sweeps, testing the
// relative log-likelihood change against epsilon after each one. The first
// call performs the initialization sweep before any counted iteration.
// Run returns StateConverged or StateExhausted on normal termination and may
// be called again to continue a non-converged chain; a converged sampler
// returns immediately.
//
// ctx is observed between sweeps only — a sweep in progress always finishes,
// leaving the tables consistent, and a cancelled run remains resumable.
// Every other failure is fatal: the error wraps ErrIndexContract or
// ErrCountInvariant and the sampler must be discarded.
func (s *Sampler) Run(ctx context.Context, maxIters int, epsilon float64) (State, error) {
	if s.failed {
		return s.state, ErrSamplerFailed
	}
	if epsilon <= 0 {
		epsilon = DefaultConvergence
	}
	if maxIters < 0 {
		maxIters = 0
	}
	if s.state == StateConverged {
		return StateConverged, nil
	}

	if s.state == StateFresh {
		if err := s.initialize(); err != nil {
			s.failed = true
			return s.state, err
		}
		s.state = StateInitialized
		ll, err := s.corpusLikelihood()
		if err != nil {
			s.failed = true
			return s.state, err
		}
		s.likelihood = ll
		s.logger.Info("initialization complete", "log_likelihood", s.likelihood)
		if s.progress != nil {
			s.progress(0, s.likelihood)
		}
	}

	for i := 0; i < maxIters; i++ {
		if err := ctx.Err(); err != nil {
			return s.state, err
		}
		prev := s.likelihood
		start := time.Now()
		if err := s.sweep(false); err != nil {
			s.failed = true
			return s.state, err
		}
		s.state = StateIterating
		s.iterations++
		ll, err := s.corpusLikelihood()
		if err != nil {
			s.failed = true
			return s.state, err
		}
		s.likelihood = ll
		s.logger.Info("iteration complete",
			"iteration", s.iterations,
			"log_likelihood", s.likelihood,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		if s.progress != nil {
			s.progress(s.iterations, s.likelihood)
		}
		ratio := math.Abs(s.likelihood-prev) / math.Abs(prev)
		if ratio <= epsilon {
			s.state = StateConverged
			s.logger.Info("chain converged",
				"iterations", s.iterations,
				"log_likelihood", s.likelihood,
			)
			return StateConverged, nil
		}
	}
	s.state = StateExhausted
	return StateExhausted, nil
}

// initialize validates the document id space against the index, allocates
// every assignment vector from one arena, and performs the first sweep.
func (s *Sampler) initialize() error {
	docs := s.idx.Docs()
	if uint32(len(docs)) != s.d {
		return fmt.Errorf("%w: Docs returned %d ids for %d documents", ErrIndexContract, len(docs), s.d)
	}
	seen := make([]bool, s.d)
	sizes := make([]uint32, s.d)
	var total uint64
	for _, d := range docs {
		if uint32(d) >= s.d {
			return fmt.Errorf("%w: document id %d out of range [0, %d)", ErrIndexContract, d, s.d)
		}
		if seen[d] {
			return fmt.Errorf("%w: document id %d yielded twice", ErrIndexContract, d)
		}
		seen[d] = true
		size, err := s.idx.DocSize(d)
		if err != nil {
			return fmt.Errorf("%w: doc_size(%d): %v", ErrIndexContract, d, err)
		}
		sizes[d] = size
		total += uint64(size)
	}
	s.docs = docs
	s.sizes = sizes

	// One arena for every assignment vector; documents never resize, so a
	// single allocation serves the whole run.
	arena := make([]TopicID, total)
	s.assignments = make([][]TopicID, s.d)
	var off uint64
	for _, d := range docs {
		n := uint64(sizes[d])
		s.assignments[d] = arena[off : off+n : off+n]
		off += n
	}
	return s.sweep(true)
}

// sweep resamples every token occurrence once, in the fixed order: documents
// as yielded by Docs, postings as yielded by Postings, occurrences 0..c-1
// within a posting. During the initialization sweep nothing is decremented;
// afterwards each token's own count is removed before drawing.
func (s *Sampler) sweep(init bool) error {
	for _, d := range s.docs {
		size, err := s.idx.DocSize(d)
		if err != nil {
			return fmt.Errorf("%w: doc_size(%d): %v", ErrIndexContract, d, err)
		}
		assigned := s.assignments[d]
		if int(size) != len(assigned) {
			return fmt.Errorf("%w: doc_size(%d) changed from %d to %d between sweeps", ErrIndexContract, d, len(assigned), size)
		}
		postings, err := s.idx.Postings(d)
		if err != nil {
			return fmt.Errorf("%w: postings(%d): %v", ErrIndexContract, d, err)
		}
		n := 0
		for _, p := range postings {
			if p.Count == 0 {
				return fmt.Errorf("%w: postings(%d) contains zero-frequency term %d", ErrIndexContract, d, p.Term)
			}
			if uint32(p.Term) >= s.v {
				return fmt.Errorf("%w: postings(%d) contains term %d outside vocabulary of %d", ErrIndexContract, d, p.Term, s.v)
			}
			for c := uint32(0); c < p.Count; c++ {
				if n >= len(assigned) {
					return fmt.Errorf("%w: postings(%d) sum exceeds document size %d", ErrIndexContract, d, len(assigned))
				}
				if !init {
					if err := s.counts.decrease(assigned[n], p.Term, d); err != nil {
						return err
					}
				}
				t := s.sampleTopic(p.Term, d)
				assigned[n] = t
				s.counts.increase(t, p.Term, d)
				n++
			}
		}
		if n != len(assigned) {
			return fmt.Errorf("%w: postings(%d) sum to %d tokens, document size is %d", ErrIndexContract, d, n, len(assigned))
		}
	}
	return nil
}

// sampleTopic draws a topic for one occurrence of term w in document d,
// conditioned on every other assignment. The caller has already removed the
// occurrence's own counts. The weights are materialized as an in-place
// cumulative sum; the draw picks the first prefix strictly exceeding a
// uniform variate in [0, total).
func (s *Sampler) sampleTopic(w corpus.TermID, d corpus.DocID) TopicID {
	docSize := float64(s.sizes[d])
	cum := 0.0
	for t := 0; t < s.k; t++ {
		topic := TopicID(t)
		termPart := (float64(s.counts.countTerm(w, topic)) + s.beta) /
			(float64(s.counts.countTopic(topic)) + s.vBeta)
		docPart := (float64(s.counts.countDocTopic(d, topic)) + s.alpha) /
			(docSize + s.kAlpha)
		cum += termPart * docPart
		s.weights[t] = cum
	}
	total := s.weights[s.k-1]
	if !(total > 0) {
		// Reachable only when the priors underflow every weight to zero;
		// degrade to a uniform draw instead of aborting the sweep.
		s.logger.Warn("degenerate topic weights, drawing uniformly", "term", w, "doc", d)
		return TopicID(s.rng.Intn(s.k))
	}
	u := s.rng.Float64() * total
	for t := 0; t < s.k; t++ {
		if u < s.weights[t] {
			return TopicID(t)
		}
	}
	return TopicID(s.k - 1)
}

// corpusLikelihood computes the progress-monitor log-likelihood of the
// current assignment. The summation order — topics outermost, then documents
// in Docs order, then postings in Postings order — is part of the contract
// so that identical runs produce bit-identical values.
func (s *Sampler) corpusLikelihood() (float64, error) {
	lgVBeta, _ := math.Lgamma(s.vBeta)
	lgBeta, _ := math.Lgamma(s.beta)
	likelihood := float64(s.k) * (lgVBeta - float64(s.v)*lgBeta)
	for t := 0; t < s.k; t++ {
		topic := TopicID(t)
		for _, d := range s.docs {
			postings, err := s.idx.Postings(d)
			if err != nil {
				return 0, fmt.Errorf("%w: postings(%d): %v", ErrIndexContract, d, err)
			}
			for _, p := range postings {
				lg, _ := math.Lgamma(float64(s.counts.countTerm(p.Term, topic)) + s.beta)
				likelihood += float64(p.Count) * lg
			}
		}
		lg, _ := math.Lgamma(float64(s.counts.countTopic(topic)) + s.vBeta)
		likelihood -= lg
	}
	return likelihood, nil
}

// State returns the sampler's lifecycle state.
func (s *Sampler) State() State {
	return s.state
}

// Iterations returns the number of completed sweeps, not counting
// initialization.
func (s *Sampler) Iterations() int {
	return s.iterations
}

// LogLikelihood returns the most recently computed log-likelihood. It is
// meaningful once the sampler has initialized.
func (s *Sampler) LogLikelihood() float64 {
	return s.likelihood
}

// NumTopics returns K.
func (s *Sampler) NumTopics() int {
	return s.k
}

// CountTerm reports how many tokens of term w are currently assigned to
// topic t.
func (s *Sampler) CountTerm(w corpus.TermID, t TopicID) uint32 {
	return s.counts.countTerm(w, t)
}

// CountTopic reports how many tokens are currently assigned to topic t
// across the corpus.
func (s *Sampler) CountTopic(t TopicID) uint64 {
	return s.counts.countTopic(t)
}

// CountDocTopic reports how many tokens of document d are currently assigned
// to topic t.
func (s *Sampler) CountDocTopic(d corpus.DocID, t TopicID) uint32 {
	return s.counts.countDocTopic(d, t)
}

// CountDoc returns the size of document d as reported by the forward index
// at initialization. It is zero before the first Run.
func (s *Sampler) CountDoc(d corpus.DocID) uint32 {
	if int(d) < len(s.sizes) {
		return s.sizes[d]
	}
	return 0
}

// Assignment returns the topic currently assigned to the n-th token
// occurrence of document d. It panics when d or n is out of range or the
// sampler has not initialized, the same way an out-of-bounds slice access
// would.
func (s *Sampler) Assignment(d corpus.DocID, n int) TopicID {
	return s.assignments[d][n]
}

func entropySeed() int64 {
	var b [8]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}
