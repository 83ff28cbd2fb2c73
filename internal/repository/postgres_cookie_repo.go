package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wolfedu/membergate/internal/model"
)

// PostgresCookieRepo はPostgreSQLを使用したCookie保管リポジトリ。
type PostgresCookieRepo struct {
	db *sql.DB
}

// NewPostgresCookieRepo はPostgresCookieRepoを生成する。
func NewPostgresCookieRepo(db *sql.DB) *PostgresCookieRepo {
	return &PostgresCookieRepo{db: db}
}

// ReplaceForEmail は指定emailの全Cookie（全ドメイン分）を削除し、recordsを挿入する。
// 1回のストア呼び出しが1つの論理的な置換操作になるよう、単一トランザクションで行う。
func (r *PostgresCookieRepo) ReplaceForEmail(ctx context.Context, email string, records []model.CookieRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 既存Cookieをドメインを問わず全削除する
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM identity_cookies WHERE email = $1`, email,
	); err != nil {
		return fmt.Errorf("failed to delete existing cookies: %w", err)
	}

	for _, rec := range records {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO identity_cookies
			 (id, email, cookie_name, cookie_value, domain, path, expires_at, secure, http_only, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			rec.ID, rec.Email, rec.CookieName, rec.CookieValue, rec.Domain, rec.Path,
			rec.ExpiresAt, rec.Secure, rec.HTTPOnly, rec.CreatedAt, rec.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert cookie %q: %w", rec.CookieName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListByEmailAndDomain は指定email+domainのCookieを作成日時降順に返す。
// 存在しない場合は空スライスを返す。
func (r *PostgresCookieRepo) ListByEmailAndDomain(ctx context.Context, email, domain string) ([]model.CookieRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, email, cookie_name, cookie_value, domain, path, expires_at, secure, http_only, created_at, updated_at
		 FROM identity_cookies
		 WHERE email = $1 AND domain = $2
		 ORDER BY created_at DESC`,
		email, domain,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list cookies: %w", err)
	}
	defer rows.Close()

	records := []model.CookieRecord{}
	for rows.Next() {
		var rec model.CookieRecord
		err := rows.Scan(
			&rec.ID, &rec.Email, &rec.CookieName, &rec.CookieValue, &rec.Domain, &rec.Path,
			&rec.ExpiresAt, &rec.Secure, &rec.HTTPOnly, &rec.CreatedAt, &rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cookie row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cookie rows: %w", err)
	}

	return records, nil
}

// DeleteByEmail は指定emailの全Cookieを削除する。
func (r *PostgresCookieRepo) DeleteByEmail(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM identity_cookies WHERE email = $1`, email,
	)
	if err != nil {
		return fmt.Errorf("failed to delete cookies: %w", err)
	}
	return nil
}

// DeleteByEmailAndDomain は指定email+domainのCookieを削除する。
func (r *PostgresCookieRepo) DeleteByEmailAndDomain(ctx context.Context, email, domain string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM identity_cookies WHERE email = $1 AND domain = $2`, email, domain,
	)
	if err != nil {
		return fmt.Errorf("failed to delete cookies for domain: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CookieRepository = (*PostgresCookieRepo)(nil)
