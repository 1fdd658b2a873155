package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/librarian/internal/model"
)

// PostgresRecommendationHistoryRepo はPostgreSQLを使用した推薦履歴リポジトリ。
type PostgresRecommendationHistoryRepo struct {
	db *sql.DB
}

// NewPostgresRecommendationHistoryRepo はPostgresRecommendationHistoryRepoを生成する。
func NewPostgresRecommendationHistoryRepo(db *sql.DB) *PostgresRecommendationHistoryRepo {
	return &PostgresRecommendationHistoryRepo{db: db}
}

const historyColumns = `id, reader_id, model_used, recommended_book_title, recommended_book_author,
	recommendation_reason, call_number, is_rejected, created_at`

func scanHistory(s rowScanner) (*model.RecommendationHistory, error) {
	h := &model.RecommendationHistory{}
	err := s.Scan(&h.ID, &h.ReaderID, &h.ModelUsed, &h.Title, &h.Author,
		&h.Reason, &h.CallNumber, &h.IsRejected, &h.CreatedAt)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// CreateBatch は推薦1件につき1行を同一トランザクションで作成する。
// 同じ呼び出しの行は同じcreated_atを持つ。
func (r *PostgresRecommendationHistoryRepo) CreateBatch(ctx context.Context, records []*model.RecommendationHistory) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO recommendation_history
		 (id, reader_id, model_used, recommended_book_title, recommended_book_author,
		  recommendation_reason, call_number, is_rejected, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare history insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, rec := range records {
		rec.ID = uuid.New().String()
		rec.CreatedAt = now
		rec.IsRejected = false
		_, err := stmt.ExecContext(ctx,
			rec.ID, rec.ReaderID, rec.ModelUsed, rec.Title, rec.Author,
			rec.Reason, rec.CallNumber, rec.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert recommendation history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListByReader は読者の推薦履歴をcreated_at降順で返す。2番目の戻り値は条件に合う総件数。
func (r *PostgresRecommendationHistoryRepo) ListByReader(ctx context.Context, readerID string, includeRejected bool, limit, offset int) ([]*model.RecommendationHistory, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM recommendation_history
		 WHERE reader_id = $1 AND ($2 OR is_rejected = FALSE)`,
		readerID, includeRejected,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count recommendation history: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+historyColumns+`
		 FROM recommendation_history
		 WHERE reader_id = $1 AND ($2 OR is_rejected = FALSE)
		 ORDER BY created_at DESC, id
		 LIMIT $3 OFFSET $4`,
		readerID, includeRejected, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list recommendation history: %w", err)
	}
	defer rows.Close()

	var records []*model.RecommendationHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan recommendation history: %w", err)
		}
		records = append(records, h)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate recommendation history: %w", err)
	}

	return records, total, nil
}

// FindByID は指定IDの推薦履歴を取得する。見つからない場合はnilを返す。
func (r *PostgresRecommendationHistoryRepo) FindByID(ctx context.Context, id string) (*model.RecommendationHistory, error) {
	h, err := scanHistory(r.db.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM recommendation_history WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find recommendation history: %w", err)
	}
	return h, nil
}

// UpdateRejected は却下フラグを更新し、更新後のレコードを返す。見つからない場合はnilを返す。
func (r *PostgresRecommendationHistoryRepo) UpdateRejected(ctx context.Context, id string, isRejected bool) (*model.RecommendationHistory, error) {
	h, err := scanHistory(r.db.QueryRowContext(ctx,
		`UPDATE recommendation_history SET is_rejected = $2
		 WHERE id = $1
		 RETURNING `+historyColumns,
		id, isRejected,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update recommendation history: %w", err)
	}
	return h, nil
}

// compile-time interface check
var _ RecommendationHistoryRepository = (*PostgresRecommendationHistoryRepo)(nil)
