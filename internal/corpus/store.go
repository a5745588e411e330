package corpus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/chatmod/chatmod/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrIndexOutOfRange is returned for operations on a missing record index.
	ErrIndexOutOfRange = errors.New("example index out of range")
)

// Remote document locations. Older deployments used different file names,
// so reads try each candidate in order; writes target the first entry.
var (
	ExamplePaths = []string{
		"data/training_examples.json",
		"data/training-data.json",
	}
	ASAPaths = []string{
		"data/asa_examples.json",
	}
)

// Store provides access to the training corpus: the normal example collection
// and the separate ASA reactivation collection. All mutations go through the
// save paths here; concurrent writers race with last-writer-wins semantics.
type Store struct {
	docs   *store.Documents
	logger *zap.Logger
	mu     sync.Mutex
}

// NewStore creates a corpus store.
func NewStore(docs *store.Documents, logger *zap.Logger) *Store {
	return &Store{
		docs:   docs,
		logger: logger.Named("corpus"),
	}
}

// Examples loads the full example collection.
func (s *Store) Examples(ctx context.Context) ([]Example, error) {
	content, err := s.docs.Load(ctx, ExamplePaths)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	var examples []Example
	if err := sonic.Unmarshal(content, &examples); err != nil {
		return nil, fmt.Errorf("failed to parse training examples: %w", err)
	}

	for i := range examples {
		examples[i].Normalize()
	}

	return examples, nil
}

// ASAExamples loads the reactivation example collection.
func (s *Store) ASAExamples(ctx context.Context) ([]ASAExample, error) {
	content, err := s.docs.Load(ctx, ASAPaths)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	var examples []ASAExample
	if err := sonic.Unmarshal(content, &examples); err != nil {
		return nil, fmt.Errorf("failed to parse ASA examples: %w", err)
	}

	return examples, nil
}

// Append adds an example and persists the collection.
func (s *Store) Append(ctx context.Context, example Example) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	examples, err := s.Examples(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	example.CreatedAt = now
	example.UpdatedAt = now
	example.Normalize()

	examples = append(examples, example)

	return s.saveExamples(ctx, examples, "Add training example")
}

// AppendASA adds a reactivation example and persists the collection.
func (s *Store) AppendASA(ctx context.Context, example ASAExample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	examples, err := s.ASAExamples(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	example.CreatedAt = now
	example.UpdatedAt = now

	examples = append(examples, example)

	return s.saveASA(ctx, examples, "Add ASA example")
}

// Update replaces the example at index.
func (s *Store) Update(ctx context.Context, index int, example Example) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	examples, err := s.Examples(ctx)
	if err != nil {
		return err
	}

	if index < 0 || index >= len(examples) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}

	example.CreatedAt = examples[index].CreatedAt
	example.UpdatedAt = time.Now().UTC()
	example.Normalize()
	examples[index] = example

	return s.saveExamples(ctx, examples, "Update training example")
}

// UpdateASA replaces the ASA example at index.
func (s *Store) UpdateASA(ctx context.Context, index int, example ASAExample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	examples, err := s.ASAExamples(ctx)
	if err != nil {
		return err
	}

	if index < 0 || index >= len(examples) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}

	example.CreatedAt = examples[index].CreatedAt
	example.UpdatedAt = time.Now().UTC()
	examples[index] = example

	return s.saveASA(ctx, examples, "Update ASA example")
}

// Delete removes the example at index.
func (s *Store) Delete(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	examples, err := s.Examples(ctx)
	if err != nil {
		return err
	}

	if index < 0 || index >= len(examples) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}

	examples = append(examples[:index], examples[index+1:]...)

	return s.saveExamples(ctx, examples, "Delete training example")
}

// DeleteASA removes the ASA example at index.
func (s *Store) DeleteASA(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	examples, err := s.ASAExamples(ctx)
	if err != nil {
		return err
	}

	if index < 0 || index >= len(examples) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}

	examples = append(examples[:index], examples[index+1:]...)

	return s.saveASA(ctx, examples, "Delete ASA example")
}

// UpdateSituation changes the situation tag of the example at index and
// returns the updated record so callers can propagate the correction to the
// feedback ledger.
func (s *Store) UpdateSituation(ctx context.Context, index int, situation string) (*Example, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	examples, err := s.Examples(ctx)
	if err != nil {
		return nil, err
	}

	if index < 0 || index >= len(examples) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}

	examples[index].SetSituation(situation)

	if err := s.saveExamples(ctx, examples, "Correct example situation"); err != nil {
		return nil, err
	}

	updated := examples[index]

	return &updated, nil
}

// RefreshSituations retags every example whose customer message matches the
// given message (exact or near-duplicate) with the situation. Returns how
// many records changed. Used by the promotion engine's back-reference scan.
func (s *Store) RefreshSituations(
	ctx context.Context, message, situation string, matches func(a, b string) bool,
) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	examples, err := s.Examples(ctx)
	if err != nil {
		return 0, err
	}

	changed := 0

	for i := range examples {
		if !matches(examples[i].CustomerMessage, message) {
			continue
		}

		if examples[i].HasSituation(situation) && examples[i].Situation == situation {
			continue
		}

		examples[i].SetSituation(situation)
		changed++
	}

	if changed == 0 {
		return 0, nil
	}

	if err := s.saveExamples(ctx, examples, "Refresh example situations"); err != nil {
		return 0, err
	}

	return changed, nil
}

func (s *Store) saveExamples(ctx context.Context, examples []Example, message string) error {
	content, err := sonic.MarshalIndent(examples, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal training examples: %w", err)
	}

	return s.docs.Save(ctx, ExamplePaths[0], content, message)
}

func (s *Store) saveASA(ctx context.Context, examples []ASAExample, message string) error {
	content, err := sonic.MarshalIndent(examples, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ASA examples: %w", err)
	}

	return s.docs.Save(ctx, ASAPaths[0], content, message)
}
