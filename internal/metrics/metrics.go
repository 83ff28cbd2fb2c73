// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層や同期エンジンから利用する。
type MetricsCollector interface {
	RecordLoginSuccess()
	RecordLoginFailure()
	RecordTokenVerification(valid bool)
	RecordDesktopAuth(granted bool)
	RecordSyncMembersCreated(count int)
	RecordSyncItemFailure()
	RecordOrdersApplied(count int)
	RecordOrderPhaseFailure()
	RecordSyncDuration(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginSuccess   prometheus.Counter
	loginFail      prometheus.Counter
	tokenVerify    *prometheus.CounterVec
	desktopAuth    *prometheus.CounterVec
	syncCreated    prometheus.Counter
	syncItemFail   prometheus.Counter
	ordersApplied  prometheus.Counter
	orderPhaseFail prometheus.Counter
	syncDuration   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "membergate_login_success_total",
			Help: "ログイン成功の合計数",
		}),
		loginFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "membergate_login_fail_total",
			Help: "ログイン失敗の合計数",
		}),
		tokenVerify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "membergate_token_verify_total",
			Help: "セッショントークン検証の結果別合計数",
		}, []string{"result"}),
		desktopAuth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "membergate_desktop_auth_total",
			Help: "デスクトップ認証の結果別合計数",
		}, []string{"result"}),
		syncCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "membergate_sync_members_created_total",
			Help: "同期で作成された会員の合計数",
		}),
		syncItemFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "membergate_sync_item_fail_total",
			Help: "同期で失敗した会員項目の合計数",
		}),
		ordersApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "membergate_orders_applied_total",
			Help: "サブスクリプションに反映された注文の合計数",
		}),
		orderPhaseFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "membergate_order_phase_fail_total",
			Help: "注文フェーズ失敗の合計数",
		}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "membergate_sync_duration_seconds",
			Help:    "同期実行の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFail,
		c.tokenVerify,
		c.desktopAuth,
		c.syncCreated,
		c.syncItemFail,
		c.ordersApplied,
		c.orderPhaseFail,
		c.syncDuration,
	)

	return c
}

// RecordLoginSuccess はログイン成功を記録する。
func (c *Collector) RecordLoginSuccess() {
	c.loginSuccess.Inc()
}

// RecordLoginFailure はログイン失敗を記録する。
func (c *Collector) RecordLoginFailure() {
	c.loginFail.Inc()
}

// RecordTokenVerification はトークン検証の結果を記録する。
func (c *Collector) RecordTokenVerification(valid bool) {
	c.tokenVerify.WithLabelValues(resultLabel(valid)).Inc()
}

// RecordDesktopAuth はデスクトップ認証の結果を記録する。
func (c *Collector) RecordDesktopAuth(granted bool) {
	c.desktopAuth.WithLabelValues(resultLabel(granted)).Inc()
}

// RecordSyncMembersCreated は同期で作成された会員数を記録する。
func (c *Collector) RecordSyncMembersCreated(count int) {
	c.syncCreated.Add(float64(count))
}

// RecordSyncItemFailure は同期の会員項目失敗を記録する。
func (c *Collector) RecordSyncItemFailure() {
	c.syncItemFail.Inc()
}

// RecordOrdersApplied は反映された注文数を記録する。
func (c *Collector) RecordOrdersApplied(count int) {
	c.ordersApplied.Add(float64(count))
}

// RecordOrderPhaseFailure は注文フェーズの失敗を記録する。
func (c *Collector) RecordOrderPhaseFailure() {
	c.orderPhaseFail.Inc()
}

// RecordSyncDuration は同期実行の所要時間を記録する。
func (c *Collector) RecordSyncDuration(duration time.Duration) {
	c.syncDuration.Observe(duration.Seconds())
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
