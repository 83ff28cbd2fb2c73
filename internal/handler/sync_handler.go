package handler

import (
	"context"
	"net/http"

	"github.com/wolfedu/membergate/internal/middleware"
	"github.com/wolfedu/membergate/internal/model"
	"github.com/wolfedu/membergate/internal/sync"
)

// SyncRunner は同期ハンドラーが必要とするエンジンインターフェース。
type SyncRunner interface {
	Run(ctx context.Context) (*sync.Result, error)
}

// SyncHandler は同期実行のHTTPハンドラー。
type SyncHandler struct {
	engine SyncRunner
}

// NewSyncHandler はSyncHandlerを生成する。
func NewSyncHandler(engine SyncRunner) *SyncHandler {
	return &SyncHandler{
		engine: engine,
	}
}

// syncResponse は同期実行の集計結果。
// 項目単位の失敗詳細はサーバーログにのみ残し、呼び出し元には返さない。
type syncResponse struct {
	MembersTotal   int  `json:"members_total"`
	MembersCreated int  `json:"members_created"`
	OrdersApplied  int  `json:"orders_applied"`
	OrderPhaseOK   bool `json:"order_phase_ok"`
}

// RunSync は外部システムとの同期を1回実行し、結果サマリーを返す。
// 会員一覧の取得失敗は502として扱う。
// POST /api/sync
func (h *SyncHandler) RunSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.Run(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewUpstreamError())
		return
	}

	writeJSONResponse(w, http.StatusOK, syncResponse{
		MembersTotal:   result.MembersTotal,
		MembersCreated: result.MembersCreated,
		OrdersApplied:  result.OrdersApplied,
		OrderPhaseOK:   result.OrderPhaseOK,
	})
}
