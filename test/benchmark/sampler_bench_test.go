// Package benchmark contains Go benchmarks for the Gibbs sampler, corpus
// engine, and analyzer pipeline, measuring throughput and allocation
// behaviour.
package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/topicmine/platform/internal/corpus"
	"github.com/topicmine/platform/internal/corpus/corpusgen"
	"github.com/topicmine/platform/internal/topics"
)

// neverConverge keeps the chain sweeping for the whole benchmark; the
// relative likelihood change between adjacent sweeps never gets this small.
const neverConverge = 1e-12

func benchCorpus(b *testing.B, docs int) *corpus.Memory {
	b.Helper()
	mem, err := corpusgen.Generate(corpusgen.Config{
		Topics:     8,
		VocabSize:  2000,
		Docs:       docs,
		AvgDocLen:  120,
		TopicAlpha: 0.2,
		TermBeta:   0.1,
		Seed:       42,
	})
	if err != nil {
		b.Fatal(err)
	}
	return mem
}

// BenchmarkGibbsSweep measures the cost of one full sweep over corpora of
// increasing size. The sampler is initialized outside the timer; each
// benchmark iteration resumes the same chain for exactly one sweep.
func BenchmarkGibbsSweep(b *testing.B) {
	sizes := []int{100, 500, 2000}
	for _, docs := range sizes {
		b.Run(fmt.Sprintf("docs_%d", docs), func(b *testing.B) {
			mem := benchCorpus(b, docs)
			sampler, err := topics.NewSampler(mem, topics.Config{
				Topics: 8,
				Alpha:  0.1,
				Beta:   0.01,
				Seed:   1,
			})
			if err != nil {
				b.Fatal(err)
			}
			if _, err := sampler.Run(context.Background(), 0, neverConverge); err != nil {
				b.Fatal(err)
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := sampler.Run(context.Background(), 1, neverConverge); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkSamplerInitialize measures the initialization sweep, which
// assigns every token a random topic and computes the first likelihood.
func BenchmarkSamplerInitialize(b *testing.B) {
	topicCounts := []int{4, 16, 64}
	for _, k := range topicCounts {
		b.Run(fmt.Sprintf("topics_%d", k), func(b *testing.B) {
			mem := benchCorpus(b, 500)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				sampler, err := topics.NewSampler(mem, topics.Config{
					Topics: k,
					Alpha:  0.1,
					Beta:   0.01,
					Seed:   int64(i + 1),
				})
				if err != nil {
					b.Fatal(err)
				}
				if _, err := sampler.Run(context.Background(), 0, neverConverge); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkSnapshot measures the cost of detaching a model from a live
// chain, which copies the count tables and assignment vectors.
func BenchmarkSnapshot(b *testing.B) {
	mem := benchCorpus(b, 500)
	sampler, err := topics.NewSampler(mem, topics.Config{
		Topics: 8,
		Alpha:  0.1,
		Beta:   0.01,
		Seed:   1,
	})
	if err != nil {
		b.Fatal(err)
	}
	if _, err := sampler.Run(context.Background(), 3, neverConverge); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		model := sampler.Snapshot()
		_ = model
	}
}

// BenchmarkModelPhi measures materializing the topic-term distribution
// matrix from a snapshot.
func BenchmarkModelPhi(b *testing.B) {
	mem := benchCorpus(b, 500)
	sampler, err := topics.NewSampler(mem, topics.Config{
		Topics: 8,
		Alpha:  0.1,
		Beta:   0.01,
		Seed:   1,
	})
	if err != nil {
		b.Fatal(err)
	}
	if _, err := sampler.Run(context.Background(), 3, neverConverge); err != nil {
		b.Fatal(err)
	}
	model := sampler.Snapshot()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		phi := model.Phi()
		_ = phi
	}
}

// BenchmarkModelTopTerms measures ranked term extraction for a single topic.
func BenchmarkModelTopTerms(b *testing.B) {
	mem := benchCorpus(b, 500)
	sampler, err := topics.NewSampler(mem, topics.Config{
		Topics: 8,
		Alpha:  0.1,
		Beta:   0.01,
		Seed:   1,
	})
	if err != nil {
		b.Fatal(err)
	}
	if _, err := sampler.Run(context.Background(), 3, neverConverge); err != nil {
		b.Fatal(err)
	}
	model := sampler.Snapshot()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		terms := model.TopTerms(topics.TopicID(i%8), 15)
		_ = terms
	}
}
