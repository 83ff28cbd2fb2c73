// Package membership は外部会員管理・コマースシステムとの連携機能を提供する。
// 会員一覧と完了済み注文の取得APIを呼び出す。
package membership

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

const (
	// membersPath は会員一覧APIのパス。
	membersPath = "/wp-json/wp/v2/users"
	// ordersPath は注文一覧APIのパス。
	ordersPath = "/wp-json/wc/v3/orders"
	// defaultPageSize は1ページあたりの取得件数。
	defaultPageSize = 100
)

// MemberSnapshot は外部システム上の会員1件のスナップショット。
// 日時はタイムゾーンなしのローカル表記で返るため文字列のまま保持する。
type MemberSnapshot struct {
	ID           int64    `json:"id"`
	Handle       string   `json:"username"`
	Email        string   `json:"email"`
	Roles        []string `json:"roles"`
	RegisteredAt string   `json:"registered_date"`
}

// OrderLineItem は注文に含まれる商品明細。
type OrderLineItem struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}

// OrderSnapshot は外部システム上の注文1件のスナップショット。
type OrderSnapshot struct {
	ID         int64           `json:"id"`
	CustomerID int64           `json:"customer_id"`
	Status     string          `json:"status"`
	Total      string          `json:"total"`
	LineItems  []OrderLineItem `json:"line_items"`
	CreatedAt  string          `json:"date_created_gmt"`
}

// Config は外部システムへの接続設定。
type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	PageSize       int
}

// Client は外部会員管理システムのAPIクライアント。
// 認証はconsumer_key / consumer_secretのクエリパラメータで行う。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     Config
}

// NewClient はClient の新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, config Config) *Client {
	if config.PageSize <= 0 {
		config.PageSize = defaultPageSize
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		config:     config,
	}
}

// ListMembers は外部システムの全会員をページネーションで取得する。
// 1ページの件数が上限未満になった時点で打ち切る。
func (c *Client) ListMembers(ctx context.Context) ([]MemberSnapshot, error) {
	var all []MemberSnapshot

	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("per_page", strconv.Itoa(c.config.PageSize))
		params.Set("page", strconv.Itoa(page))
		params.Set("context", "edit")

		var batch []MemberSnapshot
		if err := c.get(ctx, membersPath, params, &batch); err != nil {
			return nil, fmt.Errorf("会員一覧の取得に失敗しました（ページ %d）: %w", page, err)
		}

		all = append(all, batch...)
		if len(batch) < c.config.PageSize {
			break
		}
	}

	return all, nil
}

// ListOrders は指定ステータスの注文をページネーションで取得する。
func (c *Client) ListOrders(ctx context.Context, status string) ([]OrderSnapshot, error) {
	var all []OrderSnapshot

	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("per_page", strconv.Itoa(c.config.PageSize))
		params.Set("page", strconv.Itoa(page))
		params.Set("status", status)

		var batch []OrderSnapshot
		if err := c.get(ctx, ordersPath, params, &batch); err != nil {
			return nil, fmt.Errorf("注文一覧の取得に失敗しました（ページ %d）: %w", page, err)
		}

		all = append(all, batch...)
		if len(batch) < c.config.PageSize {
			break
		}
	}

	return all, nil
}

// get は認証パラメータを付与してGETリクエストを実行し、レスポンスをデコードする。
func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	reqURL, err := url.Parse(c.config.BaseURL + path)
	if err != nil {
		return fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}

	params.Set("consumer_key", c.config.ConsumerKey)
	params.Set("consumer_secret", c.config.ConsumerSecret)
	reqURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("外部システムAPIの呼び出しに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("外部システムAPIがエラーステータスを返しました",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("外部システムAPIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Error("外部システムAPIのレスポンスのパースに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	return nil
}
