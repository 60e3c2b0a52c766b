package trainer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/topicmine/platform/internal/corpus"
	"github.com/topicmine/platform/internal/modelstore"
	"github.com/topicmine/platform/internal/topics"
)

// Export file names within the output directory.
const (
	PhiFileName         = "phi.csv"
	ThetaFileName       = "theta.csv"
	AssignmentsFileName = "assignments.csv"
	TopicsFileName      = "topics.json"
)

// BuildRunRecord assembles the persistable record of one completed run. Top
// terms are resolved to vocabulary tokens, topTerms per topic.
func BuildRunRecord(runID string, model *topics.Model, corp Corpus, seed int64, topTerms int) *modelstore.RunRecord {
	vocab := corp.Vocab()
	summary := make([]modelstore.TopicSummary, model.NumTopics())
	for t := 0; t < model.NumTopics(); t++ {
		ranked := model.TopTerms(topics.TopicID(t), topTerms)
		terms := make([]modelstore.TermWeight, len(ranked))
		for i, tw := range ranked {
			terms[i] = modelstore.TermWeight{
				Term:   vocab.Token(tw.Term),
				Weight: tw.Weight,
			}
		}
		summary[t] = modelstore.TopicSummary{Topic: t, Terms: terms}
	}
	return &modelstore.RunRecord{
		RunID:         runID,
		Topics:        model.NumTopics(),
		Alpha:         model.Alpha(),
		Beta:          model.Beta(),
		Seed:          seed,
		Iterations:    model.Iterations(),
		State:         model.Status().String(),
		LogLikelihood: model.LogLikelihood(),
		CorpusDocs:    int64(model.NumDocs()),
		CorpusTerms:   int64(model.NumTerms()),
		CorpusTokens:  int64(corp.TotalTokens()),
		Summary:       summary,
		CreatedAt:     time.Now().UTC(),
	}
}

// Export writes the model's point estimates and metadata into dir: phi.csv
// (K rows of V weights, columns in vocabulary id order), theta.csv (one row
// per document: external id then K weights), assignments.csv (one row per
// document: external id then the per-token topic sequence), and topics.json
// (the run record).
func Export(dir string, model *topics.Model, corp Corpus, rec *modelstore.RunRecord) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := WritePhiCSV(filepath.Join(dir, PhiFileName), model); err != nil {
		return err
	}
	if err := WriteThetaCSV(filepath.Join(dir, ThetaFileName), model, corp); err != nil {
		return err
	}
	if err := WriteAssignmentsCSV(filepath.Join(dir, AssignmentsFileName), model, corp); err != nil {
		return err
	}
	return WriteTopicsJSON(filepath.Join(dir, TopicsFileName), rec)
}

// WritePhiCSV writes the K×V topic-term matrix, one topic per row. Column w
// holds the weight of the term with vocabulary id w, so tokens resolve
// through the corpus vocabulary file.
func WritePhiCSV(path string, model *topics.Model) error {
	return writeFile(path, func(w *bufio.Writer) error {
		phi := model.Phi()
		for t := 0; t < model.NumTopics(); t++ {
			if err := writeFloatRow(w, nil, phi.RawRowView(t)); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteThetaCSV writes the D×K document-topic matrix, one document per row,
// prefixed with the document's external id.
func WriteThetaCSV(path string, model *topics.Model, corp Corpus) error {
	return writeFile(path, func(w *bufio.Writer) error {
		theta := model.Theta()
		for d := 0; d < int(model.NumDocs()); d++ {
			extID, err := corp.ExternalID(corpus.DocID(d))
			if err != nil {
				return err
			}
			if err := writeFloatRow(w, []string{extID}, theta.RawRowView(d)); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteAssignmentsCSV writes one row per document: the external id, then the
// topic assigned to each token occurrence, space-separated, in posting order.
func WriteAssignmentsCSV(path string, model *topics.Model, corp Corpus) error {
	return writeFile(path, func(w *bufio.Writer) error {
		for d := 0; d < int(model.NumDocs()); d++ {
			extID, err := corp.ExternalID(corpus.DocID(d))
			if err != nil {
				return err
			}
			if _, err := w.WriteString(extID); err != nil {
				return err
			}
			for i, t := range model.Assignments(corpus.DocID(d)) {
				sep := byte(' ')
				if i == 0 {
					sep = ','
				}
				if err := w.WriteByte(sep); err != nil {
					return err
				}
				if _, err := w.WriteString(strconv.Itoa(int(t))); err != nil {
					return err
				}
			}
			if err := w.WriteByte('\n'); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteTopicsJSON writes the run record, indented for reading by humans.
func WriteTopicsJSON(path string, rec *modelstore.RunRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeFile(path string, fill func(w *bufio.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	w := bufio.NewWriterSize(f, 1<<20)
	if err := fill(w); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeFloatRow writes prefix fields followed by weights, comma-separated.
func writeFloatRow(w *bufio.Writer, prefix []string, weights []float64) error {
	for i, p := range prefix {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(p); err != nil {
			return err
		}
	}
	for i, x := range weights {
		if i > 0 || len(prefix) > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(strconv.FormatFloat(x, 'g', -1, 64)); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}
