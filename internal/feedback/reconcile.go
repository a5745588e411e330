package feedback

import (
	"context"
	"errors"

	"github.com/chatmod/chatmod/internal/corpus"
	"go.uber.org/zap"
)

// Reconciler propagates situation corrections made on corpus records back to
// the feedback ledger, keeping the two sides converged.
type Reconciler struct {
	ledger *Ledger
	logger *zap.Logger
}

// NewReconciler creates a Reconciler over the given ledger.
func NewReconciler(ledger *Ledger, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		ledger: ledger,
		logger: logger.Named("feedback_reconciler"),
	}
}

// PropagateFromCorpus retags the ledger entries behind an edited corpus
// record. The record's feedback ID is authoritative; records without one
// (or whose entry was deleted) fall back to message similarity. Returns how
// many entries changed.
func (r *Reconciler) PropagateFromCorpus(ctx context.Context, example *corpus.Example) (int, error) {
	entries, err := r.ledger.List(ctx)
	if err != nil {
		return 0, err
	}

	changed := 0
	matchedByID := false

	for i := range entries {
		if example.FeedbackID != "" && entries[i].ID == example.FeedbackID {
			matchedByID = true

			if retag(&entries[i], example.Situation) {
				changed++
			}
		}
	}

	if !matchedByID && example.CustomerMessage != "" {
		for i := range entries {
			if !SameMessage(entries[i].CustomerMessage, example.CustomerMessage) {
				continue
			}

			if retag(&entries[i], example.Situation) {
				changed++
			}
		}
	}

	if changed == 0 {
		return 0, nil
	}

	r.ledger.mu.Lock()
	err = r.ledger.save(ctx, entries)
	r.ledger.mu.Unlock()

	if err != nil {
		return 0, err
	}

	r.logger.Info("Propagated situation correction to feedback ledger",
		zap.String("situation", example.Situation), zap.Int("changed", changed))

	return changed, nil
}

// PropagateFromEntry retags the corpus records behind an edited ledger
// entry. Inverse direction of PropagateFromCorpus.
func (r *Reconciler) PropagateFromEntry(
	ctx context.Context, corpusStore *corpus.Store, entry *Entry,
) (int, error) {
	if entry.CustomerMessage == "" || entry.CustomerMessage == ASASentinel {
		return 0, nil
	}

	return corpusStore.RefreshSituations(ctx, entry.CustomerMessage, entry.Situation, SameMessage)
}

func retag(entry *Entry, situation string) bool {
	if entry.Situation == situation {
		return false
	}

	entry.SetSituation(situation)

	return true
}

// IsNotFound reports whether the error means a missing ledger entry.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntryNotFound)
}
