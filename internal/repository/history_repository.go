package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/flexsched/engine/internal/models"
)

// HistoryRepository persists resolution outcome records in PostgreSQL.
type HistoryRepository struct {
	db *sqlx.DB
}

// NewHistoryRepository constructs the repository.
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

type historyRow struct {
	ID                  string         `db:"id"`
	ConflictID          string         `db:"conflict_id"`
	ConflictType        string         `db:"conflict_type"`
	Strategy            string         `db:"strategy"`
	Modifications       []byte         `db:"modifications"`
	Impact              []byte         `db:"impact"`
	Feasibility         float64        `db:"feasibility"`
	RecommendationScore float64        `db:"recommendation_score"`
	Status              string         `db:"status"`
	Success             bool           `db:"success"`
	Feedback            sql.NullString `db:"feedback"`
	RecordedAt          time.Time      `db:"recorded_at"`
}

// Append inserts one ledger entry. The table is append-only; there is no
// update path.
func (r *HistoryRepository) Append(ctx context.Context, record models.ResolutionRecord) error {
	mods, err := json.Marshal(record.Modifications)
	if err != nil {
		return fmt.Errorf("marshal modifications: %w", err)
	}
	impact, err := json.Marshal(record.Impact)
	if err != nil {
		return fmt.Errorf("marshal impact: %w", err)
	}
	var feedback any
	if record.Feedback != nil {
		raw, err := json.Marshal(record.Feedback)
		if err != nil {
			return fmt.Errorf("marshal feedback: %w", err)
		}
		feedback = string(raw)
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO resolution_history
(id, conflict_id, conflict_type, strategy, modifications, impact, feasibility, recommendation_score, status, success, feedback, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		record.ID, record.ConflictID, record.ConflictType, record.Strategy,
		mods, impact, record.Feasibility, record.RecommendationScore,
		record.Status, record.Success, feedback, record.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

// List returns every ledger entry ordered by recording time.
func (r *HistoryRepository) List(ctx context.Context) ([]models.ResolutionRecord, error) {
	var rows []historyRow
	err := r.db.SelectContext(ctx, &rows, `SELECT id, conflict_id, conflict_type, strategy, modifications, impact, feasibility, recommendation_score, status, success, feedback, recorded_at FROM resolution_history ORDER BY recorded_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list history records: %w", err)
	}

	records := make([]models.ResolutionRecord, 0, len(rows))
	for _, row := range rows {
		record := models.ResolutionRecord{
			ID:                  row.ID,
			ConflictID:          row.ConflictID,
			ConflictType:        models.ConflictType(row.ConflictType),
			Strategy:            models.ResolutionStrategy(row.Strategy),
			Feasibility:         row.Feasibility,
			RecommendationScore: row.RecommendationScore,
			Status:              models.ResolutionStatus(row.Status),
			Success:             row.Success,
			RecordedAt:          row.RecordedAt,
		}
		if len(row.Modifications) > 0 {
			if err := json.Unmarshal(row.Modifications, &record.Modifications); err != nil {
				return nil, fmt.Errorf("unmarshal modifications for %s: %w", row.ID, err)
			}
		}
		if len(row.Impact) > 0 {
			if err := json.Unmarshal(row.Impact, &record.Impact); err != nil {
				return nil, fmt.Errorf("unmarshal impact for %s: %w", row.ID, err)
			}
		}
		if row.Feedback.Valid && row.Feedback.String != "" {
			feedback := &models.SatisfactionFeedback{}
			if err := json.Unmarshal([]byte(row.Feedback.String), feedback); err != nil {
				return nil, fmt.Errorf("unmarshal feedback for %s: %w", row.ID, err)
			}
			record.Feedback = feedback
		}
		records = append(records, record)
	}
	return records, nil
}
