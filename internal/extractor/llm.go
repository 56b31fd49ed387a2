package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	// defaultHTMLBudget はLLMに渡すHTMLの最大バイト数。
	// トークン消費と処理コストを抑えるため、超過分は切り捨てる。
	defaultHTMLBudget = 30000
	// defaultMaxTokens はLLM応答の最大トークン数。
	defaultMaxTokens = 500
)

// LLMClientConfig はLLMClientの設定を保持する。
type LLMClientConfig struct {
	BaseURL    string // AIルーターのベースURL（例: "http://localhost:3100"）
	MaxTokens  int    // 0以下の場合はデフォルト値を使用
	HTMLBudget int    // 0以下の場合はデフォルト値を使用
}

// LLMClient は外部テキスト生成サービスへの商品抽出フォールバッククライアント。
// chat/completions互換のエンドポイントに対し、JSONのみを返すよう指示した
// プロンプトを温度0で送信し、応答から最初のJSONオブジェクトを取り出す。
type LLMClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	maxTokens  int
	htmlBudget int
}

// NewLLMClient はLLMClientの新しいインスタンスを生成する。
// httpClientにはタイムアウト設定済みのクライアントを渡すこと。
func NewLLMClient(httpClient *http.Client, logger *slog.Logger, cfg LLMClientConfig) *LLMClient {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	htmlBudget := cfg.HTMLBudget
	if htmlBudget <= 0 {
		htmlBudget = defaultHTMLBudget
	}
	return &LLMClient{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxTokens:  maxTokens,
		htmlBudget: htmlBudget,
	}
}

// chatRequest はchat/completionsリクエストのボディ。
type chatRequest struct {
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// chatMessage はチャット形式のメッセージ。
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse はchat/completionsレスポンスのボディ。
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// llmProduct はLLM応答内のJSONオブジェクトの期待形式。
type llmProduct struct {
	Title       string `json:"title"`
	Price       string `json:"price"`
	Image       string `json:"image"`
	Description string `json:"description"`
}

// ExtractProduct はHTMLをLLMに渡して商品情報を抽出する。
// ネットワーク障害・非2xx応答・応答形式不正はエラーとして返し、
// 呼び出し元（Extractor）がフォールバック失敗として処理する。
// 応答は取得できたがタイトルが空の場合は(nil, nil)を返す。
func (c *LLMClient) ExtractProduct(ctx context.Context, html, rawURL string) (*Product, error) {
	// HTMLを固定バイト数に切り詰めてトークンコストを抑える
	truncated := html
	if len(truncated) > c.htmlBudget {
		truncated = truncated[:c.htmlBudget]
	}

	prompt := fmt.Sprintf(`Extract product information from this HTML. Return ONLY valid JSON:
{
  "title": "product name or null",
  "price": "price with currency or null",
  "image": "main image URL or null",
  "description": "short description or null"
}

HTML:
%s`, truncated)

	reqBody, err := json.Marshal(chatRequest{
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("リクエストボディの構築に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("テキスト生成サービスの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("url", rawURL),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("テキスト生成サービスがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("url", rawURL),
		)
		return nil, fmt.Errorf("テキスト生成サービスがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("レスポンスにchoicesが含まれていません")
	}

	content := chat.Choices[0].Message.Content

	// 応答テキストから最初のJSONオブジェクトを取り出す
	// （コードフェンスや前置きが付くモデルに対応する）
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("レスポンスにJSONオブジェクトが含まれていません")
	}

	var result llmProduct
	if err := json.Unmarshal([]byte(content[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("抽出結果JSONのパースに失敗しました: %w", err)
	}

	// タイトルが取れていない場合は抽出失敗として扱う
	if strings.TrimSpace(result.Title) == "" {
		return nil, nil
	}

	return &Product{
		Title:       result.Title,
		Price:       result.Price,
		Image:       result.Image,
		Description: result.Description,
		Source:      SourceFromURL(rawURL),
		Method:      MethodLLM,
	}, nil
}
