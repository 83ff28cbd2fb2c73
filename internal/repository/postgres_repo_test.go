package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

// PostgresIdentityRepoはIdentityRepositoryインターフェースを満たすことを検証
func TestPostgresIdentityRepo_ImplementsInterface(t *testing.T) {
	var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
}

// PostgresSessionTokenRepoはSessionTokenRepositoryインターフェースを満たすことを検証
func TestPostgresSessionTokenRepo_ImplementsInterface(t *testing.T) {
	var _ SessionTokenRepository = (*PostgresSessionTokenRepo)(nil)
}

// PostgresAnalyticsRepoはAnalyticsRepositoryインターフェースを満たすことを検証
func TestPostgresAnalyticsRepo_ImplementsInterface(t *testing.T) {
	var _ AnalyticsRepository = (*PostgresAnalyticsRepo)(nil)
}

// PostgresCookieRepoはCookieRepositoryインターフェースを満たすことを検証
func TestPostgresCookieRepo_ImplementsInterface(t *testing.T) {
	var _ CookieRepository = (*PostgresCookieRepo)(nil)
}

// mapDuplicateKeyがunique_violationをErrDuplicateKeyにマップすることを検証
func TestMapDuplicateKey_UniqueViolation(t *testing.T) {
	pqErr := &pq.Error{Code: uniqueViolation, Constraint: "identities_email_key"}

	mapped := mapDuplicateKey(pqErr)
	if !errors.Is(mapped, ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", mapped)
	}
}

// mapDuplicateKeyがラップされたunique_violationも検出することを検証
func TestMapDuplicateKey_WrappedUniqueViolation(t *testing.T) {
	pqErr := &pq.Error{Code: uniqueViolation, Constraint: "identities_username_key"}
	wrapped := fmt.Errorf("exec failed: %w", pqErr)

	mapped := mapDuplicateKey(wrapped)
	if !errors.Is(mapped, ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", mapped)
	}
}

// mapDuplicateKeyがその他のエラーをそのまま返すことを検証
func TestMapDuplicateKey_OtherError(t *testing.T) {
	original := errors.New("connection refused")

	mapped := mapDuplicateKey(original)
	if errors.Is(mapped, ErrDuplicateKey) {
		t.Error("unexpected ErrDuplicateKey for non-unique-violation error")
	}
	if mapped != original {
		t.Errorf("expected original error to pass through, got %v", mapped)
	}
}
