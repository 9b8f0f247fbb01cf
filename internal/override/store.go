// Package override keeps operator-recorded status decisions that shadow the
// upstream status of process records. The in-memory index is authoritative
// for the session; a persistence backend adds best-effort durability and is
// never allowed to break the session's correctness.
package override

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kursadbilgin/hrp-console/internal/domain"
)

// Persistence is the durability backend behind the in-memory index. All
// failures are logged and swallowed by the store.
type Persistence interface {
	Load(ctx context.Context) (map[int64]domain.StatusOverride, error)
	Save(ctx context.Context, override domain.StatusOverride) error
	Clear(ctx context.Context) error
}

// Store holds at most one override per record id, last write wins.
type Store struct {
	mu          sync.RWMutex
	index       map[int64]domain.StatusOverride
	persistence Persistence
	logger      *zap.Logger
	now         func() time.Time
}

// NewStore builds a store and warms the index from the backend when one is
// configured. A failing backend yields an empty index, not an error.
func NewStore(ctx context.Context, persistence Persistence, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		index:       make(map[int64]domain.StatusOverride),
		persistence: persistence,
		logger:      logger,
		now:         time.Now,
	}

	if persistence != nil {
		loaded, err := persistence.Load(ctx)
		if err != nil {
			logger.Warn("override persistence load failed, starting empty", zap.Error(err))
		} else if len(loaded) > 0 {
			s.index = loaded
		}
	}

	return s
}

// Get returns the override recorded for recordID, if any.
func (s *Store) Get(recordID int64) (domain.StatusOverride, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	override, ok := s.index[recordID]
	return override, ok
}

// Put records a decision for recordID, replacing any prior one. Validation
// failures return domain.ErrValidation; persistence failures do not fail the
// call — the override still stands for the session.
func (s *Store) Put(ctx context.Context, recordID int64, decision domain.Decision, comment string) error {
	override := domain.StatusOverride{
		RecordID:   recordID,
		Decision:   decision,
		Comment:    strings.TrimSpace(comment),
		RecordedAt: s.now().UTC(),
	}
	if err := override.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.index[recordID] = override
	s.mu.Unlock()

	if s.persistence != nil {
		if err := s.persistence.Save(ctx, override); err != nil {
			s.logger.Warn("override persistence save failed, keeping in-memory override",
				zap.Int64("recordId", recordID),
				zap.Error(err),
			)
		}
	}

	return nil
}

// Merge returns a copy of records with overridden statuses patched in.
// Records without an override pass through untouched; the input is never
// mutated.
func (s *Store) Merge(records []domain.ProcessRecord) []domain.ProcessRecord {
	merged := make([]domain.ProcessRecord, len(records))
	copy(merged, records)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.index) == 0 {
		return merged
	}

	for i := range merged {
		if override, ok := s.index[merged[i].RecordID]; ok {
			merged[i].Status = override.Decision.String()
		}
	}
	return merged
}

// Clear drops all overrides. Whether this runs on shutdown is a deployment
// decision; see config.ClearOverridesOnShutdown.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.index = make(map[int64]domain.StatusOverride)
	s.mu.Unlock()

	if s.persistence != nil {
		if err := s.persistence.Clear(ctx); err != nil {
			s.logger.Warn("override persistence clear failed", zap.Error(err))
		}
	}
}

// Len reports the number of recorded overrides.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}
