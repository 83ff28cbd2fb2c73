// Package sync は外部会員管理システムとの会員・注文同期エンジンを提供する。
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/wolfedu/membergate/internal/credential"
	"github.com/wolfedu/membergate/internal/membership"
	"github.com/wolfedu/membergate/internal/metrics"
	"github.com/wolfedu/membergate/internal/model"
	"github.com/wolfedu/membergate/internal/repository"
)

// subscriptionTerm は注文反映時に設定する購読期間。
const subscriptionTerm = 365 * 24 * time.Hour

// MembershipSource は外部システムからの会員・注文取得のインターフェース。
type MembershipSource interface {
	ListMembers(ctx context.Context) ([]membership.MemberSnapshot, error)
	ListOrders(ctx context.Context, status string) ([]membership.OrderSnapshot, error)
}

// ItemStatus は会員1件の同期結果の種別。
type ItemStatus string

const (
	// ItemCreated は新規アカウントが作成されたことを表す。
	ItemCreated ItemStatus = "created"
	// ItemExists は既存アカウントがありスキップされたことを表す。
	ItemExists ItemStatus = "exists"
	// ItemFailed は項目単位の処理が失敗したことを表す。
	ItemFailed ItemStatus = "failed"
)

// ItemOutcome は会員1件の同期結果。
type ItemOutcome struct {
	ExternalMemberID int64      `json:"external_member_id"`
	Status           ItemStatus `json:"status"`
	Reason           string     `json:"reason,omitempty"`
}

// Result は同期実行全体の結果。
type Result struct {
	MembersTotal   int           `json:"members_total"`
	MembersCreated int           `json:"members_created"`
	Outcomes       []ItemOutcome `json:"outcomes"`
	OrdersApplied  int           `json:"orders_applied"`
	OrderPhaseOK   bool          `json:"order_phase_ok"`
}

// Engine は会員フェーズと注文フェーズからなる同期処理を実行する。
type Engine struct {
	source        MembershipSource
	identityRepo  repository.IdentityRepository
	analyticsRepo repository.AnalyticsRepository
	credentials   *credential.Manager
	collector     metrics.MetricsCollector
	logger        *slog.Logger
}

// NewEngine はEngineを生成する。
func NewEngine(
	source MembershipSource,
	identityRepo repository.IdentityRepository,
	analyticsRepo repository.AnalyticsRepository,
	credentials *credential.Manager,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		source:        source,
		identityRepo:  identityRepo,
		analyticsRepo: analyticsRepo,
		credentials:   credentials,
		collector:     collector,
		logger:        logger,
	}
}

// Run は同期を1回実行する。
// 会員一覧の取得失敗は実行全体の失敗とする。
// 注文フェーズの失敗は結果に記録するのみで、会員フェーズの成果は維持する。
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	defer func() {
		e.collector.RecordSyncDuration(time.Since(start))
	}()

	members, err := e.source.ListMembers(ctx)
	if err != nil {
		e.logger.Error("会員一覧の取得に失敗しました", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	result := &Result{
		MembersTotal: len(members),
		Outcomes:     make([]ItemOutcome, 0, len(members)),
		OrderPhaseOK: true,
	}

	for _, member := range members {
		outcome := e.syncMember(ctx, member)
		result.Outcomes = append(result.Outcomes, outcome)
		switch outcome.Status {
		case ItemCreated:
			result.MembersCreated++
		case ItemFailed:
			e.collector.RecordSyncItemFailure()
		}
	}
	e.collector.RecordSyncMembersCreated(result.MembersCreated)

	applied, err := e.applyOrders(ctx)
	if err != nil {
		e.logger.Error("注文フェーズに失敗しました", slog.String("error", err.Error()))
		e.collector.RecordOrderPhaseFailure()
		result.OrderPhaseOK = false
	} else {
		result.OrdersApplied = applied
		e.collector.RecordOrdersApplied(applied)
	}

	e.logger.Info("同期が完了しました",
		slog.Int("members_total", result.MembersTotal),
		slog.Int("members_created", result.MembersCreated),
		slog.Int("orders_applied", result.OrdersApplied),
		slog.Bool("order_phase_ok", result.OrderPhaseOK),
	)

	return result, nil
}

// syncMember は会員1件をローカルアカウントに反映する。
// 既存の外部会員IDがあれば何もしない。項目単位の失敗は実行を止めない。
// 作成されるアカウントにAPIキーは発行しない。デスクトップ認証はキーが
// 明示的に割り当てられたアカウントのみが対象。
func (e *Engine) syncMember(ctx context.Context, member membership.MemberSnapshot) ItemOutcome {
	if member.Email == "" || member.Handle == "" {
		return ItemOutcome{
			ExternalMemberID: member.ID,
			Status:           ItemFailed,
			Reason:           "会員データにusernameまたはemailがありません",
		}
	}

	// ログイン不能なプレースホルダーを設定する。実際のパスワードは別経路で設定される。
	placeholder, err := e.credentials.PlaceholderHash()
	if err != nil {
		return ItemOutcome{
			ExternalMemberID: member.ID,
			Status:           ItemFailed,
			Reason:           "プレースホルダー生成に失敗しました",
		}
	}
	now := time.Now().UTC()
	externalID := member.ID
	identity := &model.Identity{
		ID:                 uuid.New().String(),
		Username:           member.Handle,
		Email:              member.Email,
		PasswordHash:       placeholder,
		SubscriptionStatus: model.SubscriptionActive,
		ExternalMemberID:   &externalID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	created, err := e.identityRepo.CreateIfAbsent(ctx, identity)
	if err != nil {
		e.logger.Error("会員アカウントの作成に失敗しました",
			slog.Int64("external_member_id", member.ID),
			slog.String("error", err.Error()),
		)
		return ItemOutcome{
			ExternalMemberID: member.ID,
			Status:           ItemFailed,
			Reason:           err.Error(),
		}
	}
	if !created {
		return ItemOutcome{ExternalMemberID: member.ID, Status: ItemExists}
	}

	e.recordSyncEvent(ctx, identity.ID, member.ID)
	return ItemOutcome{ExternalMemberID: member.ID, Status: ItemCreated}
}

// applyOrders は完了済み注文を取得し、各注文の顧客の購読期限を現在時刻+1年に設定する。
// 期限は注文ごとのフラットな上書きで、既存期限への加算は行わない。
// ローカルに対応アカウントがない注文は黙ってスキップする。
func (e *Engine) applyOrders(ctx context.Context) (int, error) {
	orders, err := e.source.ListOrders(ctx, "completed")
	if err != nil {
		return 0, fmt.Errorf("failed to list orders: %w", err)
	}

	applied := 0
	for _, order := range orders {
		if order.CustomerID == 0 {
			continue
		}

		expiresAt := time.Now().UTC().Add(subscriptionTerm)
		rows, err := e.identityRepo.UpdateSubscriptionByExternalMemberID(
			ctx, order.CustomerID, model.SubscriptionActive, &expiresAt)
		if err != nil {
			return applied, fmt.Errorf("failed to apply order %d: %w", order.ID, err)
		}
		if rows > 0 {
			applied++
		}
	}

	return applied, nil
}

// recordSyncEvent は同期による作成イベントを記録する。失敗は本処理に影響させない。
func (e *Engine) recordSyncEvent(ctx context.Context, identityID string, externalMemberID int64) {
	event := &model.AnalyticsEvent{
		ID:         uuid.New().String(),
		IdentityID: identityID,
		Action:     model.ActionExternalSync,
		Details:    map[string]any{"external_member_id": externalMemberID},
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.analyticsRepo.Create(ctx, event); err != nil {
		e.logger.Error("同期イベントの記録に失敗しました",
			slog.String("identity_id", identityID),
			slog.String("error", err.Error()),
		)
	}
}
