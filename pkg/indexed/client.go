package indexed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vaultscan/holderx/pkg/utils"
	"go.uber.org/zap"
)

// Client is a wrapper around an http.Client that implements a circuit-breaker
// and token-bucket for the external balance-indexing service.
type Client struct {
	endpoints []string
	client    *http.Client
	logger    *zap.Logger

	// paging defaults for row queries
	pageSize  int
	maxRows   int
	pageDelay time.Duration

	// token-bucket
	tokens      int64
	maxTokens   int64
	refillEvery time.Duration
	lastRefill  atomic.Value // time.Time

	// circuit-breaker
	mu       sync.Mutex
	failures map[string]int
	opened   map[string]time.Time

	breakerThreshold int
	breakerCooldown  time.Duration
}

// Opts is the set of options for a new Client.
type Opts struct {
	Endpoints       []string
	Timeout         time.Duration
	RPS             int
	Burst           int
	BreakerFailures int
	BreakerCooldown time.Duration
	PageSize        int
	MaxRows         int
	PageDelay       time.Duration
	HTTPClient      *http.Client
}

// NewWithOpts creates a new Client with the given options.
func NewWithOpts(o Opts, logger *zap.Logger) *Client {
	if o.RPS <= 0 {
		o.RPS = 20
	}
	if o.Burst <= 0 {
		o.Burst = 40
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.BreakerFailures <= 0 {
		o.BreakerFailures = 3
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 5 * time.Second
	}
	if o.PageSize <= 0 {
		o.PageSize = 1000
	}

	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	} else if client.Timeout == 0 {
		client.Timeout = o.Timeout
	}

	c := &Client{
		endpoints:        utils.Dedup(o.Endpoints),
		client:           client,
		logger:           logger,
		pageSize:         o.PageSize,
		maxRows:          o.MaxRows,
		pageDelay:        o.PageDelay,
		maxTokens:        int64(o.Burst),
		refillEvery:      time.Second / time.Duration(o.RPS),
		failures:         map[string]int{},
		opened:           map[string]time.Time{},
		breakerThreshold: o.BreakerFailures,
		breakerCooldown:  o.BreakerCooldown,
	}
	c.tokens = c.maxTokens
	c.lastRefill.Store(time.Now())
	return c
}

// NewFromEnv builds a Client from environment variables:
//   - INDEXED_ENDPOINTS: comma-separated service base URLs
//   - INDEXED_TIMEOUT, INDEXED_RPS, INDEXED_BURST
//   - INDEXED_PAGE_SIZE, INDEXED_MAX_ROWS, INDEXED_PAGE_DELAY
func NewFromEnv(logger *zap.Logger) *Client {
	endpoints := strings.Split(utils.Env("INDEXED_ENDPOINTS", "http://localhost:8080"), ",")
	return NewWithOpts(Opts{
		Endpoints: endpoints,
		Timeout:   utils.EnvDuration("INDEXED_TIMEOUT", 30*time.Second),
		RPS:       utils.EnvInt("INDEXED_RPS", 20),
		Burst:     utils.EnvInt("INDEXED_BURST", 40),
		PageSize:  utils.EnvInt("INDEXED_PAGE_SIZE", 1000),
		MaxRows:   int(utils.EnvInt64("INDEXED_MAX_ROWS", 0)),
		PageDelay: utils.EnvDuration("INDEXED_PAGE_DELAY", 0),
	}, logger)
}

var (
	sharedOnce sync.Once
	shared     *Client
)

// Shared returns the process-scoped client, constructed lazily from the
// environment on first use and reused for every request afterwards.
func Shared(logger *zap.Logger) *Client {
	sharedOnce.Do(func() {
		shared = NewFromEnv(logger)
		logger.Info("indexing-service client initialized",
			zap.Strings("endpoints", shared.endpoints),
			zap.Int("pageSize", shared.pageSize))
	})
	return shared
}

// Close releases idle connections. The client itself stays usable; this is
// intended for process shutdown.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}

// refill refills the token-bucket with new tokens if necessary.
func (c *Client) refill() {
	last := c.lastRefill.Load().(time.Time)
	now := time.Now()
	if now.Sub(last) >= c.refillEvery {
		if atomic.LoadInt64(&c.tokens) < c.maxTokens {
			atomic.AddInt64(&c.tokens, 1)
		}
		c.lastRefill.Store(now)
	}
}

// acquire acquires a token from the token-bucket, blocking if necessary.
func (c *Client) acquire() {
	for {
		c.refill()
		if atomic.LoadInt64(&c.tokens) > 0 {
			atomic.AddInt64(&c.tokens, -1)
			return
		}
		time.Sleep(c.refillEvery / 2)
	}
}

// isOpen returns true if the endpoint's breaker is in the OPEN state.
func (c *Client) isOpen(ep string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.opened[ep]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(c.opened, ep)
		c.failures[ep] = 0
		return false
	}
	return true
}

// noteFailure marks an endpoint as failed and opens the circuit-breaker if
// the failure count exceeds the threshold.
func (c *Client) noteFailure(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep]++
	if c.failures[ep] >= c.breakerThreshold {
		c.opened[ep] = time.Now().Add(c.breakerCooldown)
	}
}

// doJSON sends a JSON request to a configured endpoint and decodes the JSON
// response into out. It fails over across endpoints on transport and
// server-side errors; there is no retry beyond one pass over the endpoint
// list, so a failing source surfaces immediately.
func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	if len(c.endpoints) == 0 {
		return fmt.Errorf("no endpoints configured")
	}

	var lastErr error
	for i := 0; i < len(c.endpoints); i++ {
		ep := c.endpoints[i%len(c.endpoints)]
		// Skip endpoints whose breaker is OPEN.
		if c.isOpen(ep) {
			continue
		}

		c.acquire()

		var body *bytes.Reader
		if payload != nil {
			b, mErr := json.Marshal(payload)
			if mErr != nil {
				// Fatal for this attempt; don't mark the endpoint as failed.
				return mErr
			}
			body = bytes.NewReader(b)
		} else {
			body = bytes.NewReader(nil)
		}

		req, reqErr := http.NewRequestWithContext(ctx, method, ep+path, body)
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			c.noteFailure(ep)
			continue
		}

		// From here on, always drain+close the body before continuing/returning.
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server %d", resp.StatusCode)
			c.noteFailure(ep)
			_ = utils.DrainAndClose(resp.Body)
			continue
		}
		if resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("http %d", resp.StatusCode)
			_ = utils.DrainAndClose(resp.Body)
			continue
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				_ = utils.DrainAndClose(resp.Body)
				lastErr = err
				continue
			}
		}

		if cerr := utils.DrainAndClose(resp.Body); cerr != nil {
			return cerr
		}
		return nil
	}

	return lastErr
}
