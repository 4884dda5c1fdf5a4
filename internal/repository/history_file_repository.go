package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/flexsched/engine/internal/models"
	"github.com/flexsched/engine/pkg/storage"
)

// FileHistoryRepository keeps the resolution ledger as a JSON array on disk,
// for deployments that run without PostgreSQL.
type FileHistoryRepository struct {
	store    *storage.LocalStorage
	filename string
	logger   *zap.Logger
	mu       sync.Mutex
}

// NewFileHistoryRepository constructs the file-backed ledger.
func NewFileHistoryRepository(store *storage.LocalStorage, filename string, logger *zap.Logger) *FileHistoryRepository {
	if filename == "" {
		filename = "resolution_history.json"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileHistoryRepository{store: store, filename: filename, logger: logger}
}

// Append rewrites the ledger file with the new record included.
func (r *FileHistoryRepository) Append(ctx context.Context, record models.ResolutionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := r.readAll()
	records = append(records, record)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history ledger: %w", err)
	}
	if _, err := r.store.Save(r.filename, data); err != nil {
		return fmt.Errorf("write history ledger: %w", err)
	}
	return nil
}

// List returns all ledger entries. A missing or malformed ledger yields an
// empty list: the resolver falls back to neutral priors instead of failing.
func (r *FileHistoryRepository) List(ctx context.Context) ([]models.ResolutionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readAll(), nil
}

func (r *FileHistoryRepository) readAll() []models.ResolutionRecord {
	data, err := r.store.Read(r.filename)
	if err != nil {
		if !os.IsNotExist(unwrapPathError(err)) {
			r.logger.Sugar().Warnw("history ledger unreadable, treating as empty", "error", err)
		}
		return nil
	}
	var records []models.ResolutionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		r.logger.Sugar().Warnw("history ledger malformed, treating as empty", "error", err)
		return nil
	}
	return records
}

func unwrapPathError(err error) error {
	for {
		unwrapped, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		next := unwrapped.Unwrap()
		if next == nil {
			return err
		}
		err = next
	}
}
