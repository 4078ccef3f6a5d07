package httpx

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTimeout  = 120 * time.Second
	defaultRetryMax = 2
	defaultBackoff  = 500 * time.Millisecond
	maxBackoff      = 10 * time.Second

	UserAgent = "dicebench/1.0 (+https://github.com/John-Robertt/dicebench)"
)

// Transport 把“固定 UA + 有界重试 + 退避”固化为统一策略。
//
// 模型后端只负责组装请求与解析回复，不关心网络策略细节。
type Transport struct {
	Base http.RoundTripper

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	RetryMax int
	// Backoff 是首次重试前的等待时间，之后每次翻倍（上限 10s）。
	Backoff time.Duration

	UserAgent string

	sleep func(time.Duration) <-chan time.Time
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	max := t.RetryMax
	if max < 0 || !replayable(req) {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		r, err := t.prepare(req, attempt)
		if err != nil {
			return nil, err
		}

		resp, err := t.Base.RoundTrip(r)
		var wait time.Duration
		switch {
		case err != nil:
			lastErr = err
			if req.Context().Err() != nil {
				// ctx 已取消：不再重试，直接返回最后错误。
				return nil, lastErr
			}
		case retryableStatus(resp.StatusCode) && attempt < max:
			wait = retryAfter(resp.Header.Get("Retry-After"))
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			_ = resp.Body.Close()
			lastErr = errors.New(resp.Status)
		default:
			return resp, nil
		}
		if attempt == max {
			break
		}

		if wait <= 0 {
			wait = t.backoff(attempt)
		}
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-t.after(wait):
		}
	}
	return nil, lastErr
}

func (t *Transport) prepare(req *http.Request, attempt int) (*http.Request, error) {
	// Clone 会复制 Header 等，避免在 RoundTripper 内部“污染”调用方的 request。
	r := req.Clone(req.Context())
	if attempt > 0 && req.Body != nil && req.Body != http.NoBody {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		r.Body = body
	}
	if r.Header.Get("User-Agent") == "" {
		ua := t.UserAgent
		if ua == "" {
			ua = UserAgent
		}
		r.Header.Set("User-Agent", ua)
	}
	return r, nil
}

func (t *Transport) backoff(attempt int) time.Duration {
	d := t.Backoff
	if d <= 0 {
		d = defaultBackoff
	}
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

func (t *Transport) after(d time.Duration) <-chan time.Time {
	if t.sleep != nil {
		return t.sleep(d)
	}
	return time.After(d)
}

// replayable：GET/HEAD 无 body，或 body 可通过 GetBody 重建（http.NewRequest 对常见 body 类型会自动设置）。
func replayable(req *http.Request) bool {
	if req.Body == nil || req.Body == http.NoBody {
		return true
	}
	return req.GetBody != nil
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// retryAfter 只支持秒数形式；HTTP-date 形式退化为默认退避。
func retryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0
	}
	d := time.Duration(n) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// NewClient 构造模型后端使用的 HTTP client。
//
// 规则：
// - proxyURL 非空：走该代理；否则遵循 HTTPS_PROXY 等环境变量
// - 固定 UA + 有界重试 + 总超时（timeout<=0 时用 DefaultTimeout）
func NewClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 90 * time.Second,
		MaxIdleConnsPerHost:   4,
	}

	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, errors.New("代理地址必须包含 scheme 与 host")
		}
		base.Proxy = http.ProxyURL(u)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &http.Client{
		Transport: &Transport{
			Base:      base,
			RetryMax:  defaultRetryMax,
			Backoff:   defaultBackoff,
			UserAgent: UserAgent,
		},
		Timeout: timeout,
	}, nil
}
