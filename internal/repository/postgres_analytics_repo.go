package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/wolfedu/membergate/internal/model"
)

// PostgresAnalyticsRepo はPostgreSQLを使用したアナリティクスイベントリポジトリ。
// イベントは追記専用であり、更新・削除のメソッドは提供しない。
type PostgresAnalyticsRepo struct {
	db *sql.DB
}

// NewPostgresAnalyticsRepo はPostgresAnalyticsRepoを生成する。
func NewPostgresAnalyticsRepo(db *sql.DB) *PostgresAnalyticsRepo {
	return &PostgresAnalyticsRepo{db: db}
}

// Create はアナリティクスイベントを追記する。
// DetailsはJSONBカラムにシリアライズして格納する。
func (r *PostgresAnalyticsRepo) Create(ctx context.Context, event *model.AnalyticsEvent) error {
	var details []byte
	if event.Details != nil {
		var err error
		details, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal event details: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO analytics_events (id, identity_id, action, details, remote_addr, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.IdentityID, event.Action, details, event.RemoteAddr, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analytics event: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AnalyticsRepository = (*PostgresAnalyticsRepo)(nil)
