package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wolfedu/membergate/internal/model"
)

// PostgresSessionTokenRepo はPostgreSQLを使用したセッショントークン監査リポジトリ。
type PostgresSessionTokenRepo struct {
	db *sql.DB
}

// NewPostgresSessionTokenRepo はPostgresSessionTokenRepoを生成する。
func NewPostgresSessionTokenRepo(db *sql.DB) *PostgresSessionTokenRepo {
	return &PostgresSessionTokenRepo{db: db}
}

// Create はセッショントークンの監査行を作成する。
func (r *PostgresSessionTokenRepo) Create(ctx context.Context, token *model.SessionToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_tokens (id, identity_id, token, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		token.ID, token.IdentityID, token.Token, token.ExpiresAt, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session token: %w", mapDuplicateKey(err))
	}
	return nil
}

// RevokeByToken は指定トークンの行に失効時刻を記録する。
// 該当行がない場合もエラーにはしない。
func (r *PostgresSessionTokenRepo) RevokeByToken(ctx context.Context, token string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE session_tokens SET revoked_at = $2 WHERE token = $1 AND revoked_at IS NULL`,
		token, at,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke session token: %w", err)
	}
	return nil
}

// IsRevoked は指定トークンが明示的に失効済みかどうかを返す。
// 行が存在しない場合はfalseを返す（監査行は参考情報のため）。
func (r *PostgresSessionTokenRepo) IsRevoked(ctx context.Context, token string) (bool, error) {
	var revoked bool
	err := r.db.QueryRowContext(ctx,
		`SELECT revoked_at IS NOT NULL FROM session_tokens WHERE token = $1`,
		token,
	).Scan(&revoked)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return revoked, nil
}

// DeleteExpiredBefore は埋め込み期限がcutoffより前の監査行を削除し、削除件数を返す。
func (r *PostgresSessionTokenRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM session_tokens WHERE expires_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired session tokens: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// compile-time interface check
var _ SessionTokenRepository = (*PostgresSessionTokenRepo)(nil)
