package topics

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/topicmine/platform/internal/corpus"
)

// TermWeight pairs a term with its probability mass under a topic.
type TermWeight struct {
	Term   corpus.TermID `json:"term"`
	Weight float64       `json:"weight"`
}

// Model is a point-in-time deep copy of a sampler's sufficient statistics,
// detached from the chain: later Run calls do not change it. It derives the
// posterior point estimates φ and θ and the ranked terms per topic.
type Model struct {
	k     int
	v     uint32
	d     uint32
	alpha float64
	beta  float64

	topicTerm   []map[corpus.TermID]uint32 // indexed by topic
	docTopic    []map[TopicID]uint32       // indexed by doc
	topicTotals []uint64                   // indexed by topic
	sizes       []uint32                   // indexed by doc
	assignments [][]TopicID

	iterations int
	likelihood float64
	status     State
}

// Snapshot clones the sampler's tables into a detached Model. It is normally
// called after Run terminates; snapshotting mid-chain yields the consistent
// state left by the last completed sweep.
func (s *Sampler) Snapshot() *Model {
	m := &Model{
		k:           s.k,
		v:           s.v,
		d:           s.d,
		alpha:       s.alpha,
		beta:        s.beta,
		topicTerm:   make([]map[corpus.TermID]uint32, s.k),
		docTopic:    make([]map[TopicID]uint32, s.d),
		topicTotals: make([]uint64, s.k),
		sizes:       make([]uint32, s.d),
		assignments: make([][]TopicID, s.d),
		iterations:  s.iterations,
		likelihood:  s.likelihood,
		status:      s.state,
	}
	for t := 0; t < s.k; t++ {
		topic := TopicID(t)
		m.topicTotals[t] = s.counts.countTopic(topic)
		src := s.counts.topicTerm[topic]
		dst := make(map[corpus.TermID]uint32, len(src))
		for w, c := range src {
			dst[w] = c
		}
		m.topicTerm[t] = dst
	}
	for i := uint32(0); i < s.d; i++ {
		d := corpus.DocID(i)
		src := s.counts.docTopic[d]
		dst := make(map[TopicID]uint32, len(src))
		for t, c := range src {
			dst[t] = c
		}
		m.docTopic[i] = dst
		if s.sizes != nil {
			m.sizes[i] = s.sizes[i]
		}
		if s.assignments != nil {
			m.assignments[i] = append([]TopicID(nil), s.assignments[i]...)
		}
	}
	return m
}

// NumTopics returns K.
func (m *Model) NumTopics() int { return m.k }

// NumTerms returns the vocabulary size V.
func (m *Model) NumTerms() uint32 { return m.v }

// NumDocs returns the document count D.
func (m *Model) NumDocs() uint32 { return m.d }

// Alpha returns the document-topic prior.
func (m *Model) Alpha() float64 { return m.alpha }

// Beta returns the topic-term prior.
func (m *Model) Beta() float64 { return m.beta }

// Iterations returns the number of sweeps the chain had completed.
func (m *Model) Iterations() int { return m.iterations }

// LogLikelihood returns the chain's last computed log-likelihood.
func (m *Model) LogLikelihood() float64 { return m.likelihood }

// Status returns the chain state at snapshot time.
func (m *Model) Status() State { return m.status }

// CountTerm reports how many tokens of term w were assigned to topic t.
func (m *Model) CountTerm(w corpus.TermID, t TopicID) uint32 {
	if int(t) >= m.k {
		return 0
	}
	return m.topicTerm[t][w]
}

// CountTopic reports how many tokens were assigned to topic t.
func (m *Model) CountTopic(t TopicID) uint64 {
	if int(t) >= m.k {
		return 0
	}
	return m.topicTotals[t]
}

// CountDocTopic reports how many tokens of document d were assigned to
// topic t.
func (m *Model) CountDocTopic(d corpus.DocID, t TopicID) uint32 {
	if uint32(d) >= m.d {
		return 0
	}
	return m.docTopic[d][t]
}

// CountDoc returns the size of document d.
func (m *Model) CountDoc(d corpus.DocID) uint32 {
	if uint32(d) >= m.d {
		return 0
	}
	return m.sizes[d]
}

// Assignments returns a copy of document d's per-token topic assignments.
func (m *Model) Assignments(d corpus.DocID) []TopicID {
	if uint32(d) >= m.d {
		return nil
	}
	return append([]TopicID(nil), m.assignments[d]...)
}

// Phi returns the K×V topic-term distribution,
// φ_{t,w} = (n_{t,w} + β) / (n_t + V·β). Every row sums to one.
func (m *Model) Phi() *mat.Dense {
	phi := mat.NewDense(m.k, int(m.v), nil)
	for t := 0; t < m.k; t++ {
		denom := float64(m.topicTotals[t]) + m.vBetaSum()
		row := phi.RawRowView(t)
		for w := range row {
			row[w] = (float64(m.topicTerm[t][corpus.TermID(w)]) + m.beta) / denom
		}
	}
	return phi
}

// Theta returns the D×K document-topic distribution,
// θ_{d,t} = (n_{d,t} + α) / (n_d + K·α). Every row sums to one.
func (m *Model) Theta() *mat.Dense {
	theta := mat.NewDense(int(m.d), m.k, nil)
	kAlpha := float64(m.k) * m.alpha
	for d := 0; d < int(m.d); d++ {
		denom := float64(m.sizes[d]) + kAlpha
		row := theta.RawRowView(d)
		for t := range row {
			row[t] = (float64(m.docTopic[d][TopicID(t)]) + m.alpha) / denom
		}
	}
	return theta
}

// TopTerms returns at most n terms of topic t ranked by φ weight, heaviest
// first, with ties broken by ascending term id so the order is
// deterministic. Terms never assigned to t are not ranked: under a small β
// they share a uniform residual mass and carry no signal.
func (m *Model) TopTerms(t TopicID, n int) []TermWeight {
	if int(t) >= m.k || n <= 0 {
		return nil
	}
	denom := float64(m.topicTotals[t]) + m.vBetaSum()
	ranked := make([]TermWeight, 0, len(m.topicTerm[t]))
	for w, c := range m.topicTerm[t] {
		ranked = append(ranked, TermWeight{
			Term:   w,
			Weight: (float64(c) + m.beta) / denom,
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Weight != ranked[j].Weight {
			return ranked[i].Weight > ranked[j].Weight
		}
		return ranked[i].Term < ranked[j].Term
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func (m *Model) vBetaSum() float64 {
	return float64(m.v) * m.beta
}
