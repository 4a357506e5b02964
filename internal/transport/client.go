package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"opsdash/internal/metrics"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Load(ctx context.Context) (string, error)
}

// Client 上游告警 API 客户端
type Client struct {
	httpClient  *http.Client
	baseURL     string
	headers     map[string]string
	retries     int
	tokens      TokenSource
	logger      *zap.Logger
	tracer      trace.Tracer
	requestID   func(context.Context) string
	hookMu      sync.RWMutex
	authExpired func(context.Context)
}

// ClientOption 客户端配置选项
type ClientOption func(*Client)

// WithTimeout 设置请求超时时间
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHeaders 设置默认请求头
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// WithRetries 设置幂等请求的重试次数
func WithRetries(retries int) ClientOption {
	return func(c *Client) {
		if retries > 0 {
			c.retries = retries
		}
	}
}

// WithHTTPClient 替换底层 http.Client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRequestID 设置请求 ID 来源，未取到时生成新的 uuid
func WithRequestID(fn func(context.Context) string) ClientOption {
	return func(c *Client) {
		c.requestID = fn
	}
}

// NewClient 创建上游客户端。apiBase 为完整前缀，如 http://localhost:8000/api/v1
func NewClient(apiBase string, tokens TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(apiBase, "/"),
		headers:    map[string]string{"Accept": "application/json"},
		tokens:     tokens,
		logger:     zap.NewNop(),
		tracer:     otel.Tracer("opsdash/internal/transport"),
	}

	for _, opt := range opts {
		opt(c)
	}

	if _, ok := c.headers["User-Agent"]; !ok {
		c.headers["User-Agent"] = "opsdash/1.0"
	}
	c.logger = c.logger.Named("transport")
	return c
}

// OnAuthExpired registers the callback run when the upstream answers 401 to
// an authenticated call. The session lifecycle uses it to log out.
func (c *Client) OnAuthExpired(fn func(context.Context)) {
	c.hookMu.Lock()
	c.authExpired = fn
	c.hookMu.Unlock()
}

// Request 描述一次上游调用
type Request struct {
	Method string
	Path   string // 相对路径，如 /alerts/42
	Route  string // 指标标签，如 /alerts/{id}；为空时使用 Path
	Params url.Values
	Body   any
	// SkipAuthExpiry 为 true 时 401 视为凭证错误而不是会话过期（登录接口）
	SkipAuthExpiry bool
}

func (r Request) route() string {
	if r.Route != "" {
		return r.Route
	}
	return r.Path
}

// Send 执行请求，2xx 时将 JSON 响应解码到 out（out 为 nil 时丢弃响应体）
func (c *Client) Send(ctx context.Context, req Request, out any) error {
	body, _, err := c.SendRaw(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Method: req.Method, Path: req.Path, StatusCode: http.StatusOK,
			Err: fmt.Errorf("解析JSON响应失败: %w", err)}
	}
	return nil
}

// SendRaw 执行请求并返回原始响应体
func (c *Client) SendRaw(ctx context.Context, req Request) ([]byte, http.Header, error) {
	ctx, span := c.tracer.Start(ctx, "transport."+req.Method)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.route", req.route()),
		attribute.Bool("org_scoped", req.Params.Has("org_id")),
	)

	start := time.Now()
	body, header, status, err := c.doWithRetry(ctx, req)
	metrics.UpstreamRequestDuration.WithLabelValues(req.Method, req.route()).Observe(time.Since(start).Seconds())
	metrics.UpstreamRequestsTotal.WithLabelValues(req.Method, req.route(), strconv.Itoa(status)).Inc()
	span.SetAttributes(attribute.Int("http.status_code", status))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream call failed")
		return nil, nil, err
	}
	return body, header, nil
}

// GetJSON 发送 GET 请求并解析 JSON 响应
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, out any) error {
	return c.Send(ctx, Request{Method: http.MethodGet, Path: path, Params: params}, out)
}

func (c *Client) doWithRetry(ctx context.Context, req Request) ([]byte, http.Header, int, error) {
	attempts := 1
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		attempts += c.retries
	}

	var (
		body   []byte
		header http.Header
		status int
		err    error
	)
	for i := 0; i < attempts; i++ {
		body, header, status, err = c.do(ctx, req)
		if !retryable(status, err) || i == attempts-1 {
			break
		}

		c.logger.Warn("上游请求失败，准备重试",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, nil, status, &Error{Method: req.Method, Path: req.Path, Err: ctx.Err()}
		case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
		}
	}
	return body, header, status, err
}

// retryable 仅网络错误与 5xx 重试，鉴权与租户相关错误不重试
func retryable(status int, err error) bool {
	if err == nil {
		return false
	}
	return status == 0 || status >= 500
}

func (c *Client) do(ctx context.Context, req Request) ([]byte, http.Header, int, error) {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, nil, 0, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, 0, &Error{Method: req.Method, Path: req.Path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, resp.StatusCode, &Error{Method: req.Method, Path: req.Path, Err: fmt.Errorf("读取响应失败: %w", err)}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, resp.Header, resp.StatusCode, nil
	}

	detail := errorDetail(body)
	if strings.Contains(detail, "org_id") {
		c.logger.Error("org context error",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Int("status", resp.StatusCode),
			zap.String("detail", detail),
		)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if req.SkipAuthExpiry {
			return nil, nil, resp.StatusCode, &Error{Method: req.Method, Path: req.Path,
				StatusCode: resp.StatusCode, Detail: detail, Err: ErrInvalidCredentials}
		}
		c.fireAuthExpired(ctx)
		return nil, nil, resp.StatusCode, fmt.Errorf("%w: %s %s", ErrAuthExpired, req.Method, req.Path)
	}

	return nil, nil, resp.StatusCode, &Error{Method: req.Method, Path: req.Path, StatusCode: resp.StatusCode, Detail: detail}
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	u := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Params) > 0 {
		u += "?" + req.Params.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, &Error{Method: req.Method, Path: req.Path, Err: fmt.Errorf("序列化请求体失败: %w", err)}
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, &Error{Method: req.Method, Path: req.Path, Err: fmt.Errorf("创建请求失败: %w", err)}
	}

	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("X-Request-ID", c.nextRequestID(ctx))

	if c.tokens != nil {
		token, err := c.tokens.Load(ctx)
		if err != nil {
			return nil, &Error{Method: req.Method, Path: req.Path, Err: fmt.Errorf("读取凭证失败: %w", err)}
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return httpReq, nil
}

func (c *Client) nextRequestID(ctx context.Context) string {
	if c.requestID != nil {
		if id := c.requestID(ctx); id != "" {
			return id
		}
	}
	return uuid.New().String()
}

func (c *Client) fireAuthExpired(ctx context.Context) {
	c.hookMu.RLock()
	fn := c.authExpired
	c.hookMu.RUnlock()
	if fn != nil {
		fn(ctx)
	}
}

// errorDetail 提取上游错误体中的 detail 字段
func errorDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}
	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return s
	}
	return string(payload.Detail)
}
