package dal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dkeye/Ring/internal/domain"
)

// History implements core.HistoryStore on the call_history table.
type History struct {
	DB *sql.DB
}

func (s *History) Append(ctx context.Context, rec domain.CallRecord) error {
	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO call_history (caller, receiver, media_kind, started_at, outcome) VALUES (?, ?, ?, ?, ?)",
		string(rec.Caller), string(rec.Receiver), string(rec.Kind), rec.StartedAt, string(rec.Outcome),
	)
	if err != nil {
		return fmt.Errorf("error inserting call record: %w", err)
	}
	return nil
}

func (s *History) ByIdentity(ctx context.Context, id domain.Identity, limit int) ([]domain.CallRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		"SELECT caller, receiver, media_kind, started_at, outcome FROM call_history WHERE caller = ? OR receiver = ? ORDER BY started_at DESC LIMIT ?",
		string(id), string(id), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("error querying call history: %w", err)
	}
	defer rows.Close()

	var recs []domain.CallRecord
	for rows.Next() {
		var r domain.CallRecord
		if err := rows.Scan(&r.Caller, &r.Receiver, &r.Kind, &r.StartedAt, &r.Outcome); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
