// bsky — минимальный XRPC-клиент AT Protocol для чтения home-таймлайна
// и работы с лайками от имени одного аккаунта.
//
// Клиент сам управляет сессией: createSession при старте, refreshSession
// заранее по exp из accessJwt (подпись не проверяем — токен наш собственный,
// нужен только срок действия). Все исходящие вызовы проходят через
// rate-лимитер, чтобы не упираться в лимиты PDS.
package bsky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/pribylovaa/bsky-gallery/internal/config"
	"github.com/pribylovaa/bsky-gallery/internal/metrics"
)

var (
	// ErrUnavailable — сеть/5xx: источник недоступен.
	ErrUnavailable = errors.New("source unavailable")
	// ErrRateLimited — 429 от PDS; вызывающий должен отступить.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnauthenticated — сессия невалидна и не восстановилась.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNotFound — запись не найдена (битый URI и т.п.).
	ErrNotFound = errors.New("not found")
)

// Запас до exp, после которого access-токен считается протухшим.
const tokenSkew = 60 * time.Second

// Client — XRPC-клиент одного аккаунта Bluesky.
type Client struct {
	http    *http.Client
	service string
	handle  string
	appPass string
	limiter *rate.Limiter

	mu         sync.Mutex
	did        string
	accessJwt  string
	refreshJwt string
	accessExp  time.Time
}

// New создаёт клиент без установленной сессии; Login обязателен до первого вызова.
func New(cfg config.BskyConfig, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		http:    hc,
		service: strings.TrimRight(cfg.Service, "/"),
		handle:  cfg.Handle,
		appPass: cfg.AppPassword,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RateBurst),
	}
}

// Handle возвращает хэндл аккаунта клиента.
func (c *Client) Handle() string { return c.handle }

// DID возвращает DID аккаунта (пустой до Login).
func (c *Client) DID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.did
}

type sessionResponse struct {
	DID        string `json:"did"`
	Handle     string `json:"handle"`
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
}

// Login выполняет com.atproto.server.createSession с app password.
func (c *Client) Login(ctx context.Context) error {
	const op = "bsky/client/Login"

	body := map[string]string{
		"identifier": c.handle,
		"password":   c.appPass,
	}

	var resp sessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "com.atproto.server.createSession", nil, body, "", &resp); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.applySession(resp)

	return nil
}

// applySession — под c.mu: принимает свежую пару токенов.
func (c *Client) applySession(s sessionResponse) {
	c.did = s.DID
	c.accessJwt = s.AccessJwt
	c.refreshJwt = s.RefreshJwt

	if exp, err := jwtExpiry(s.AccessJwt); err == nil {
		c.accessExp = exp
	} else {
		// exp не распарсился — будем обновляться на каждый 401.
		c.accessExp = time.Time{}
	}
}

// jwtExpiry достаёт exp из JWT без проверки подписи.
func jwtExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, errors.New("no exp claim")
	}

	return exp.Time, nil
}

// accessToken возвращает валидный access-токен, обновляя сессию при
// приближении exp. Конкурентные вызовы сериализуются на c.mu, так что
// refreshSession выполняется не чаще одного раза на протухание.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	const op = "bsky/client/accessToken"

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessJwt == "" {
		return "", fmt.Errorf("%s: %w: no session, Login required", op, ErrUnauthenticated)
	}

	if c.accessExp.IsZero() || time.Until(c.accessExp) > tokenSkew {
		return c.accessJwt, nil
	}

	var resp sessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "com.atproto.server.refreshSession", nil, nil, c.refreshJwt, &resp); err != nil {
		return "", fmt.Errorf("%s: refresh: %w", op, err)
	}

	c.applySession(resp)
	return c.accessJwt, nil
}

// authedGet — GET с Bearer access-токеном; один повтор после refresh на 401.
func (c *Client) authedGet(ctx context.Context, method string, q url.Values, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	err = c.doJSON(ctx, http.MethodGet, method, q, nil, token, out)
	if !errors.Is(err, ErrUnauthenticated) {
		return err
	}

	// Токен мог быть отозван между accessToken и запросом: форсируем refresh.
	c.mu.Lock()
	c.accessExp = time.Now()
	c.mu.Unlock()

	token, terr := c.accessToken(ctx)
	if terr != nil {
		return terr
	}

	return c.doJSON(ctx, http.MethodGet, method, q, nil, token, out)
}

// authedPost — POST с Bearer access-токеном; один повтор после refresh на 401.
func (c *Client) authedPost(ctx context.Context, method string, in, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	err = c.doJSON(ctx, http.MethodPost, method, nil, in, token, out)
	if !errors.Is(err, ErrUnauthenticated) {
		return err
	}

	c.mu.Lock()
	c.accessExp = time.Now()
	c.mu.Unlock()

	token, terr := c.accessToken(ctx)
	if terr != nil {
		return terr
	}

	return c.doJSON(ctx, http.MethodPost, method, nil, in, token, out)
}

// xrpcError — тело ошибки XRPC (например {"error":"ExpiredToken","message":...}).
type xrpcError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doJSON выполняет один XRPC-вызов: лимитер, сериализация, маппинг статусов.
func (c *Client) doJSON(ctx context.Context, httpMethod, method string, q url.Values, in any, bearer string, out any) error {
	const op = "bsky/client/doJSON"

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	endpoint := c.service + "/xrpc/" + method
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal: %w", op, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, endpoint, body)
	if err != nil {
		return fmt.Errorf("%s: new_request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.SourceErrors.WithLabelValues("transport").Inc()
		return fmt.Errorf("%s: %s: %w: %v", op, method, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: %s: decode: %w", op, method, err)
		}
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		metrics.SourceErrors.WithLabelValues("rate_limited").Inc()
		return fmt.Errorf("%s: %s: %w", op, method, ErrRateLimited)
	case resp.StatusCode == http.StatusUnauthorized:
		_, _ = io.Copy(io.Discard, resp.Body)
		metrics.SourceErrors.WithLabelValues("unauthenticated").Inc()
		return fmt.Errorf("%s: %s: %w", op, method, ErrUnauthenticated)
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s: %s: %w", op, method, ErrNotFound)
	case resp.StatusCode >= 500:
		_, _ = io.Copy(io.Discard, resp.Body)
		metrics.SourceErrors.WithLabelValues("unavailable").Inc()
		return fmt.Errorf("%s: %s: status=%d: %w", op, method, resp.StatusCode, ErrUnavailable)
	default:
		var xe xrpcError
		_ = json.NewDecoder(resp.Body).Decode(&xe)
		return fmt.Errorf("%s: %s: status=%d error=%s: %s", op, method, resp.StatusCode, xe.Error, xe.Message)
	}
}
