package topics

import (
	"fmt"

	"github.com/topicmine/platform/internal/corpus"
)

// TopicID identifies one of the K latent topics. Valid values are in [0, K).
type TopicID uint32

// countTables carry the sampler's sufficient statistics: tokens per
// (topic, term), tokens per (document, topic), and tokens per topic. All
// three are sparse: a zero count is never stored, and decrementing a count
// to zero erases its key. The sparsity is load-bearing — K·V and D·K are far
// larger than the number of live counts on real corpora.
type countTables struct {
	topicTerm map[TopicID]map[corpus.TermID]uint32
	docTopic  map[corpus.DocID]map[TopicID]uint32
	topic     map[TopicID]uint64
}

func newCountTables() *countTables {
	return &countTables{
		topicTerm: make(map[TopicID]map[corpus.TermID]uint32),
		docTopic:  make(map[corpus.DocID]map[TopicID]uint32),
		topic:     make(map[TopicID]uint64),
	}
}

// increase records one token of term w in document d as assigned to topic t,
// creating entries as needed.
func (c *countTables) increase(t TopicID, w corpus.TermID, d corpus.DocID) {
	terms, ok := c.topicTerm[t]
	if !ok {
		terms = make(map[corpus.TermID]uint32)
		c.topicTerm[t] = terms
	}
	terms[w]++

	docTopics, ok := c.docTopic[d]
	if !ok {
		docTopics = make(map[TopicID]uint32)
		c.docTopic[d] = docTopics
	}
	docTopics[t]++

	c.topic[t]++
}

// decrease removes one token of term w in document d from topic t, erasing
// any counter that reaches zero. All three counters must currently be at
// least one; anything else means the bookkeeping has diverged from the
// assignments and the chain is corrupt.
func (c *countTables) decrease(t TopicID, w corpus.TermID, d corpus.DocID) error {
	terms, ok := c.topicTerm[t]
	if !ok {
		return fmt.Errorf("%w: topic %d holds no term counts", ErrCountInvariant, t)
	}
	termCount, ok := terms[w]
	if !ok {
		return fmt.Errorf("%w: term %d not counted under topic %d", ErrCountInvariant, w, t)
	}
	if termCount == 1 {
		delete(terms, w)
	} else {
		terms[w] = termCount - 1
	}

	docTopics, ok := c.docTopic[d]
	if !ok {
		return fmt.Errorf("%w: document %d holds no topic counts", ErrCountInvariant, d)
	}
	docCount, ok := docTopics[t]
	if !ok {
		return fmt.Errorf("%w: topic %d not counted under document %d", ErrCountInvariant, t, d)
	}
	if docCount == 1 {
		delete(docTopics, t)
	} else {
		docTopics[t] = docCount - 1
	}

	total, ok := c.topic[t]
	if !ok {
		return fmt.Errorf("%w: topic %d has no corpus-wide count", ErrCountInvariant, t)
	}
	if total == 1 {
		delete(c.topic, t)
	} else {
		c.topic[t] = total - 1
	}
	return nil
}

// countTerm returns the number of tokens of term w assigned to topic t,
// zero when absent.
func (c *countTables) countTerm(w corpus.TermID, t TopicID) uint32 {
	return c.topicTerm[t][w]
}

// countTopic returns the number of tokens assigned to topic t across the
// corpus, zero when absent.
func (c *countTables) countTopic(t TopicID) uint64 {
	return c.topic[t]
}

// countDocTopic returns the number of tokens in document d assigned to
// topic t, zero when absent.
func (c *countTables) countDocTopic(d corpus.DocID, t TopicID) uint32 {
	return c.docTopic[d][t]
}
