package feedback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/chatmod/chatmod/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LedgerPaths lists the candidate document locations of the feedback ledger,
// in read priority order.
var LedgerPaths = []string{
	"data/feedback.json",
	"data/feedback_log.json",
}

var (
	// ErrEntryNotFound is returned when no ledger entry carries the requested ID.
	ErrEntryNotFound = errors.New("feedback entry not found")
	// ErrAlreadyJudged is returned when a non-pending entry is judged again.
	ErrAlreadyJudged = errors.New("feedback entry already judged")
)

// Ledger stores feedback entries as a single remote JSON document.
type Ledger struct {
	docs   *store.Documents
	logger *zap.Logger
	mu     sync.Mutex
}

// NewLedger creates a Ledger over the given document store.
func NewLedger(docs *store.Documents, logger *zap.Logger) *Ledger {
	return &Ledger{
		docs:   docs,
		logger: logger.Named("feedback_ledger"),
	}
}

// List returns all ledger entries. A missing document is an empty ledger.
func (l *Ledger) List(ctx context.Context) ([]Entry, error) {
	data, err := l.docs.Load(ctx, LedgerPaths)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to load feedback ledger: %w", err)
	}

	var entries []Entry
	if err := sonic.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse feedback ledger: %w", err)
	}

	for i := range entries {
		entries[i].Normalize()
	}

	return entries, nil
}

// Get returns the entry with the given ID.
func (l *Ledger) Get(ctx context.Context, id string) (*Entry, error) {
	entries, err := l.List(ctx)
	if err != nil {
		return nil, err
	}

	for i := range entries {
		if entries[i].ID == id {
			return &entries[i], nil
		}
	}

	return nil, ErrEntryNotFound
}

// Create appends a new pending entry and returns it with its generated ID.
func (l *Ledger) Create(ctx context.Context, entry Entry) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.List(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Status == "" {
		entry.Status = StatusPending
	}
	if entry.IsASA && entry.CustomerMessage == "" {
		entry.CustomerMessage = ASASentinel
	}

	entry.Timestamp = now
	entry.UpdatedAt = now
	entry.Normalize()

	entries = append(entries, entry)
	if err := l.save(ctx, entries); err != nil {
		return nil, err
	}

	return &entry, nil
}

// Update replaces the entry with the same ID.
func (l *Ledger) Update(ctx context.Context, entry *Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.update(ctx, entry)
}

// Delete removes the entry with the given ID.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.List(ctx)
	if err != nil {
		return err
	}

	kept := entries[:0]

	for i := range entries {
		if entries[i].ID != id {
			kept = append(kept, entries[i])
		}
	}

	if len(kept) == len(entries) {
		return ErrEntryNotFound
	}

	return l.save(ctx, kept)
}

// MarkEdited flips pending entries referenced by the given feedback IDs to
// edited without touching the training corpus. Already judged entries are
// left alone, so repeated healing passes are no-ops.
func (l *Ledger) MarkEdited(ctx context.Context, feedbackIDs map[string]struct{}) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.List(ctx)
	if err != nil {
		return 0, err
	}

	healed := 0

	for i := range entries {
		if entries[i].Status != StatusPending {
			continue
		}
		if _, ok := feedbackIDs[entries[i].ID]; !ok {
			continue
		}

		entries[i].Status = StatusEdited
		entries[i].UpdatedAt = time.Now().UTC()
		healed++
	}

	if healed == 0 {
		return 0, nil
	}

	if err := l.save(ctx, entries); err != nil {
		return 0, err
	}

	l.logger.Info("Healed pending entries already present in training data",
		zap.Int("healed", healed))

	return healed, nil
}

// RefreshSituations retags entries whose customer message matches, skipping
// the entry the correction came from. Judged entries are retagged too; only
// the situation changes, never the status.
func (l *Ledger) RefreshSituations(
	ctx context.Context, excludeID, message, situation string, same func(a, b string) bool,
) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.List(ctx)
	if err != nil {
		return 0, err
	}

	changed := 0

	for i := range entries {
		if entries[i].ID == excludeID || entries[i].IsASA {
			continue
		}
		if entries[i].Situation == situation || !same(entries[i].CustomerMessage, message) {
			continue
		}

		entries[i].SetSituation(situation)
		changed++
	}

	if changed == 0 {
		return 0, nil
	}

	if err := l.save(ctx, entries); err != nil {
		return 0, err
	}

	return changed, nil
}

func (l *Ledger) update(ctx context.Context, entry *Entry) error {
	entries, err := l.List(ctx)
	if err != nil {
		return err
	}

	for i := range entries {
		if entries[i].ID != entry.ID {
			continue
		}

		entry.UpdatedAt = time.Now().UTC()
		entry.Normalize()
		entries[i] = *entry

		return l.save(ctx, entries)
	}

	return ErrEntryNotFound
}

func (l *Ledger) save(ctx context.Context, entries []Entry) error {
	data, err := sonic.ConfigDefault.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize feedback ledger: %w", err)
	}

	return l.docs.Save(ctx, LedgerPaths[0], data, "Update feedback ledger")
}
