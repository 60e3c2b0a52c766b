package topics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topicmine/platform/internal/corpus"
)

func TestIncreaseCreatesEntries(t *testing.T) {
	c := newCountTables()
	c.increase(TopicID(1), corpus.TermID(7), corpus.DocID(3))
	c.increase(TopicID(1), corpus.TermID(7), corpus.DocID(3))
	c.increase(TopicID(0), corpus.TermID(7), corpus.DocID(3))

	assert.Equal(t, uint32(2), c.countTerm(corpus.TermID(7), TopicID(1)))
	assert.Equal(t, uint32(1), c.countTerm(corpus.TermID(7), TopicID(0)))
	assert.Equal(t, uint64(2), c.countTopic(TopicID(1)))
	assert.Equal(t, uint32(2), c.countDocTopic(corpus.DocID(3), TopicID(1)))
	assert.Equal(t, uint32(1), c.countDocTopic(corpus.DocID(3), TopicID(0)))
}

func TestAccessorsReturnZeroWhenAbsent(t *testing.T) {
	c := newCountTables()
	assert.Equal(t, uint32(0), c.countTerm(corpus.TermID(0), TopicID(0)))
	assert.Equal(t, uint64(0), c.countTopic(TopicID(9)))
	assert.Equal(t, uint32(0), c.countDocTopic(corpus.DocID(4), TopicID(2)))
}

func TestDecreaseErasesZeroCounts(t *testing.T) {
	c := newCountTables()
	c.increase(TopicID(2), corpus.TermID(5), corpus.DocID(1))
	require.NoError(t, c.decrease(TopicID(2), corpus.TermID(5), corpus.DocID(1)))

	// Keys must be gone, not resting at zero.
	_, termStored := c.topicTerm[TopicID(2)][corpus.TermID(5)]
	assert.False(t, termStored, "zero term count left in table")
	_, docStored := c.docTopic[corpus.DocID(1)][TopicID(2)]
	assert.False(t, docStored, "zero doc-topic count left in table")
	_, topicStored := c.topic[TopicID(2)]
	assert.False(t, topicStored, "zero topic count left in table")
}

func TestDecreaseThenIncreaseIsIdentity(t *testing.T) {
	c := newCountTables()
	seed := []struct {
		topic TopicID
		term  corpus.TermID
		doc   corpus.DocID
	}{
		{0, 0, 0}, {0, 1, 0}, {1, 0, 0}, {1, 2, 1}, {0, 2, 1}, {1, 2, 1},
	}
	for _, s := range seed {
		c.increase(s.topic, s.term, s.doc)
	}

	before := cloneTables(c)
	for _, s := range seed {
		require.NoError(t, c.decrease(s.topic, s.term, s.doc))
		c.increase(s.topic, s.term, s.doc)
	}
	after := cloneTables(c)

	assert.Equal(t, before.topicTerm, after.topicTerm)
	assert.Equal(t, before.docTopic, after.docTopic)
	assert.Equal(t, before.topic, after.topic)
}

func TestDecreaseAbsentCountFails(t *testing.T) {
	c := newCountTables()
	err := c.decrease(TopicID(0), corpus.TermID(0), corpus.DocID(0))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCountInvariant)

	// A live (term, topic) pair does not excuse a missing doc count.
	c.increase(TopicID(0), corpus.TermID(0), corpus.DocID(0))
	err = c.decrease(TopicID(0), corpus.TermID(0), corpus.DocID(5))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCountInvariant)
}

func cloneTables(c *countTables) *countTables {
	out := newCountTables()
	for topic, terms := range c.topicTerm {
		dst := make(map[corpus.TermID]uint32, len(terms))
		for w, n := range terms {
			dst[w] = n
		}
		out.topicTerm[topic] = dst
	}
	for doc, perTopic := range c.docTopic {
		dst := make(map[TopicID]uint32, len(perTopic))
		for topic, n := range perTopic {
			dst[topic] = n
		}
		out.docTopic[doc] = dst
	}
	for topic, n := range c.topic {
		out.topic[topic] = n
	}
	return out
}
