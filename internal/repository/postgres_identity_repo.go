package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/wolfedu/membergate/internal/model"
)

// uniqueViolation はPostgreSQLのunique_violationエラーコード。
const uniqueViolation = "23505"

// mapDuplicateKey はunique_violationをErrDuplicateKeyにマップする。
// 制約名をエラーメッセージに含め、その他のエラーはそのまま返す。
func mapDuplicateKey(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, pqErr.Constraint)
	}
	return err
}

// PostgresIdentityRepo はPostgreSQLを使用した会員アカウントリポジトリ。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

const identityColumns = `id, username, email, password_hash, subscription_status,
	subscription_expires_at, external_member_id, api_key, created_at, updated_at`

// scanIdentity は1行分のidentityをスキャンする。
func scanIdentity(row *sql.Row) (*model.Identity, error) {
	identity := &model.Identity{}
	err := row.Scan(
		&identity.ID, &identity.Username, &identity.Email, &identity.PasswordHash,
		&identity.SubscriptionStatus, &identity.SubscriptionExpiresAt,
		&identity.ExternalMemberID, &identity.APIKey,
		&identity.CreatedAt, &identity.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return identity, nil
}

// FindByID は指定IDのアイデンティティを取得する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	identity, err := scanIdentity(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by ID: %w", err)
	}
	return identity, nil
}

// FindByUsername はユーザー名でアイデンティティを検索する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByUsername(ctx context.Context, username string) (*model.Identity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE username = $1`, username)
	identity, err := scanIdentity(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by username: %w", err)
	}
	return identity, nil
}

// FindByAPIKey はAPIキーでアイデンティティを検索する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByAPIKey(ctx context.Context, apiKey string) (*model.Identity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE api_key = $1`, apiKey)
	identity, err := scanIdentity(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by API key: %w", err)
	}
	return identity, nil
}

// FindByExternalMemberID は外部会員IDでアイデンティティを検索する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByExternalMemberID(ctx context.Context, externalMemberID int64) (*model.Identity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE external_member_id = $1`, externalMemberID)
	identity, err := scanIdentity(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by external member ID: %w", err)
	}
	return identity, nil
}

// Create はアイデンティティを作成する。一意性制約違反時はErrDuplicateKeyを返す。
func (r *PostgresIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO identities (id, username, email, password_hash, subscription_status,
		 subscription_expires_at, external_member_id, api_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		identity.ID, identity.Username, identity.Email, identity.PasswordHash,
		identity.SubscriptionStatus, identity.SubscriptionExpiresAt,
		identity.ExternalMemberID, identity.APIKey,
		identity.CreatedAt, identity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", mapDuplicateKey(err))
	}
	return nil
}

// CreateIfAbsent は外部会員IDをキーとした条件付きINSERTを行う。
// ON CONFLICT DO NOTHINGにより、存在チェックとINSERTが単一のアトミックな文になる。
// 挿入された場合はtrue、同一external_member_idの行が既にある場合はfalseを返す。
func (r *PostgresIdentityRepo) CreateIfAbsent(ctx context.Context, identity *model.Identity) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO identities (id, username, email, password_hash, subscription_status,
		 subscription_expires_at, external_member_id, api_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (external_member_id) DO NOTHING`,
		identity.ID, identity.Username, identity.Email, identity.PasswordHash,
		identity.SubscriptionStatus, identity.SubscriptionExpiresAt,
		identity.ExternalMemberID, identity.APIKey,
		identity.CreatedAt, identity.UpdatedAt,
	)
	if err != nil {
		// username/email等、external_member_id以外の制約違反はここに来る
		return false, fmt.Errorf("failed to insert identity: %w", mapDuplicateKey(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// UpdateSubscription は指定アイデンティティのサブスクリプション状態と期限を更新する。
func (r *PostgresIdentityRepo) UpdateSubscription(ctx context.Context, id string, status model.SubscriptionStatus, expiresAt *time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE identities
		 SET subscription_status = $2, subscription_expires_at = $3, updated_at = now()
		 WHERE id = $1`,
		id, status, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("identity not found: %s", id)
	}
	return nil
}

// UpdateSubscriptionByExternalMemberID は外部会員IDで特定されるアイデンティティの
// サブスクリプションを更新し、更新された行数を返す。該当行がない場合は0を返す。
func (r *PostgresIdentityRepo) UpdateSubscriptionByExternalMemberID(ctx context.Context, externalMemberID int64, status model.SubscriptionStatus, expiresAt *time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE identities
		 SET subscription_status = $2, subscription_expires_at = $3, updated_at = now()
		 WHERE external_member_id = $1`,
		externalMemberID, status, expiresAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update subscription by external member ID: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// ListWithLoginStats は全アイデンティティをログイン統計付きで作成日時降順に返す。
func (r *PostgresIdentityRepo) ListWithLoginStats(ctx context.Context) ([]IdentityWithStats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT i.id, i.username, i.email, i.password_hash, i.subscription_status,
		        i.subscription_expires_at, i.external_member_id, i.api_key,
		        i.created_at, i.updated_at,
		        COUNT(a.id) AS login_count,
		        MAX(a.created_at) AS last_login_at
		 FROM identities i
		 LEFT JOIN analytics_events a ON a.identity_id = i.id AND a.action = $1
		 GROUP BY i.id
		 ORDER BY i.created_at DESC`,
		model.ActionLogin,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var results []IdentityWithStats
	for rows.Next() {
		var row IdentityWithStats
		err := rows.Scan(
			&row.ID, &row.Username, &row.Email, &row.PasswordHash,
			&row.SubscriptionStatus, &row.SubscriptionExpiresAt,
			&row.ExternalMemberID, &row.APIKey,
			&row.CreatedAt, &row.UpdatedAt,
			&row.LoginCount, &row.LastLoginAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identity row: %w", err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate identity rows: %w", err)
	}

	return results, nil
}

// compile-time interface check
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
