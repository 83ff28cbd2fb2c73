package app

import (
	"bytes"
	"testing"
)

// TestRun_SyncCommand_OpensDBConnection はsyncコマンドがDB接続を試みることを検証する。
// テスト環境ではDB接続が失敗するため、エラーが返ることを許容する。
func TestRun_SyncCommand_OpensDBConnection(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"sync"})
	// DB接続が存在しないため、エラーが返ることを期待する。
	if err == nil {
		// CI/ローカルにDBがある場合は同期が実行されるため、ここに到達する可能性がある。
		t.Log("Run(sync) succeeded - DB is available in test environment")
	}
}

// TestRun_CleanupCommand_OpensDBConnection はcleanupコマンドがDB接続を試みることを検証する。
func TestRun_CleanupCommand_OpensDBConnection(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"cleanup"})
	if err == nil {
		t.Log("Run(cleanup) succeeded - DB is available in test environment")
	}
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TOKEN_SIGNING_KEY", "")
	t.Setenv("MEMBERSHIP_URL", "")
	t.Setenv("MEMBERSHIP_CONSUMER_KEY", "")
	t.Setenv("MEMBERSHIP_CONSUMER_SECRET", "")

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	if err == nil {
		t.Fatal("Run with missing env should return error")
	}
}

func TestRun_HealthcheckCommand_FailsWithoutServer(t *testing.T) {
	// サーバーが起動していないポートを指定する
	t.Setenv("SERVER_PORT", "59999")

	var buf bytes.Buffer
	err := Run(&buf, []string{"healthcheck"})
	if err == nil {
		t.Fatal("healthcheck without a running server should return error")
	}
}
