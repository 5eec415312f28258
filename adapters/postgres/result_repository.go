package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/thibautjombart/epichange/domain/core"
	"github.com/thibautjombart/epichange/domain/detect"
	"github.com/thibautjombart/epichange/ports"
)

// resultRepository implements the ResultStore interface on PostgreSQL
type resultRepository struct {
	db *sqlx.DB
}

// NewResultRepository creates a new result repository
func NewResultRepository(db *sqlx.DB) ports.ResultStore {
	return &resultRepository{db: db}
}

// EnsureSchema creates the detection results table if it does not exist.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	schema := `CREATE TABLE IF NOT EXISTS detection_results (
		run_id       TEXT PRIMARY KEY,
		batch_id     TEXT NOT NULL,
		group_key    TEXT NOT NULL DEFAULT '',
		k            INTEGER NOT NULL,
		best_model   TEXT NOT NULL,
		n_outliers   INTEGER NOT NULL,
		p_value      DOUBLE PRECISION NOT NULL,
		detection    JSONB NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_detection_results_batch ON detection_results (batch_id);`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create detection_results schema: %w", err)
	}
	return nil
}

// Save stores one group's detection under a batch identifier.
func (r *resultRepository) Save(ctx context.Context, batchID core.ID, det *detect.Detection) error {
	payload, err := json.Marshal(det)
	if err != nil {
		return fmt.Errorf("failed to marshal detection: %w", err)
	}

	query := `INSERT INTO detection_results (
		run_id, batch_id, group_key, k, best_model, n_outliers, p_value, detection
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (run_id) DO NOTHING`

	best := det.Best
	_, err = r.db.ExecContext(ctx, query,
		best.RunID.String(), batchID.String(), best.Group,
		best.K, best.BestModel, best.NOutliers, best.PValue, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to save detection result: %w", err)
	}
	return nil
}

// ListByBatch returns the stored best results for one batch.
func (r *resultRepository) ListByBatch(ctx context.Context, batchID core.ID) ([]*detect.Result, error) {
	query := `SELECT detection FROM detection_results WHERE batch_id = $1 ORDER BY group_key`

	rows, err := r.db.QueryContext(ctx, query, batchID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list detection results: %w", err)
	}
	defer rows.Close()

	var out []*detect.Result
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan detection result: %w", err)
		}
		var det detect.Detection
		if err := json.Unmarshal(payload, &det); err != nil {
			return nil, fmt.Errorf("failed to unmarshal detection: %w", err)
		}
		out = append(out, det.Best)
	}
	return out, rows.Err()
}
