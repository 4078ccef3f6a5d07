package httpx

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func instant(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func testClient(retryMax int) *http.Client {
	return &http.Client{Transport: &Transport{
		Base:     http.DefaultTransport,
		RetryMax: retryMax,
		sleep:    instant,
	}}
}

func TestTransport_RetriesPostWithReplayableBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if string(b) != `{"q":1}` {
			t.Errorf("第 %d 次请求 body 不一致：%q", calls.Load()+1, b)
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	resp, err := testClient(2).Post(srv.URL, "application/json", strings.NewReader(`{"q":1}`))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", resp.StatusCode)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("期望 3 次请求，实际 %d", got)
	}
}

func TestTransport_ReturnsLastRetryableResponse(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	resp, err := testClient(1).Get(srv.URL)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("期望透传 429，实际 %d", resp.StatusCode)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("期望 2 次请求，实际 %d", got)
	}
}

func TestTransport_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	resp, err := testClient(3).Get(srv.URL)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	resp.Body.Close()
	if got := calls.Load(); got != 1 {
		t.Fatalf("401 不应重试，实际请求 %d 次", got)
	}
}

func TestTransport_SetsUserAgent(t *testing.T) {
	var ua atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	resp, err := testClient(0).Get(srv.URL)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	resp.Body.Close()
	if got, _ := ua.Load().(string); got != UserAgent {
		t.Fatalf("期望 UA=%q，实际 %q", UserAgent, got)
	}
}

func TestRetryAfter(t *testing.T) {
	cases := map[string]time.Duration{
		"":       0,
		"2":      2 * time.Second,
		"999":    maxBackoff,
		"-1":     0,
		"Wed, 1": 0,
	}
	for in, want := range cases {
		if got := retryAfter(in); got != want {
			t.Fatalf("retryAfter(%q) 期望 %v，实际 %v", in, want, got)
		}
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:8080", 0)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if c.Timeout != DefaultTimeout {
		t.Fatalf("期望默认超时 %v，实际 %v", DefaultTimeout, c.Timeout)
	}
	tr, ok := c.Transport.(*Transport)
	if !ok {
		t.Fatalf("期望 *Transport，实际 %T", c.Transport)
	}
	if tr.Base.(*http.Transport).Proxy == nil {
		t.Fatalf("期望启用代理，但 Proxy=nil")
	}

	if _, err := NewClient("127.0.0.1", 0); err == nil {
		t.Fatalf("期望缺少 scheme 的代理地址报错")
	}
}
