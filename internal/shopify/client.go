package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spokeworks/chainline/internal/config"
	"go.uber.org/zap"
)

// Rate-limit tuning for the Shopify GraphQL cost model.
const (
	rateLimitAvailableThreshold = 100
	rateLimitRecoveryFactor     = 50
)

var (
	ErrNotConfigured = errors.New("shopify credentials not configured")
	ErrThrottled     = errors.New("shopify throttled")
)

// GraphQLError is a non-throttle error returned by the Admin API.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return fmt.Sprintf("graphql errors: %v", e.Messages)
}

// Client speaks the Shopify Admin GraphQL API. It handles token
// acquisition (client-credentials grant with a cached 24h token, or a
// legacy static token), cost-based throttle back-off, and bounded
// retries on throttle responses.
type Client struct {
	httpClient *http.Client
	log        *zap.Logger
	cfg        config.ShopifyConfig

	// baseURL overrides the store domain in tests.
	baseURL string
	sleep   func(time.Duration)

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time

	locationMu sync.Mutex
	locationID string

	pubMu          sync.Mutex
	publicationIDs []string

	maxAttempts int
}

func NewClient(cfg config.Config, log *zap.Logger) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		log:         log.Named("shopify.client"),
		cfg:         cfg.Shopify,
		sleep:       time.Sleep,
		maxAttempts: cfg.SyncMaxAttempts,
	}
}

// Configured reports whether the client has a store and a credential.
func (c *Client) Configured() bool {
	if c.cfg.StoreDomain == "" {
		return false
	}
	return c.cfg.AccessToken != "" || (c.cfg.ClientID != "" && c.cfg.ClientSecret != "")
}

func (c *Client) endpoint() string {
	if c.baseURL != "" {
		return c.baseURL + "/admin/api/" + c.cfg.APIVersion + "/graphql.json"
	}
	return "https://" + c.cfg.StoreDomain + "/admin/api/" + c.cfg.APIVersion + "/graphql.json"
}

func (c *Client) tokenEndpoint() string {
	if c.baseURL != "" {
		return c.baseURL + "/admin/oauth/access_token"
	}
	return "https://" + c.cfg.StoreDomain + "/admin/oauth/access_token"
}

// accessToken returns a valid token, refreshing the client-credentials
// grant when it is within a minute of expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		if c.cfg.AccessToken == "" {
			return "", ErrNotConfigured
		}
		return c.cfg.AccessToken, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.token, nil
	}

	body, err := json.Marshal(map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("token grant failed: %s: %s", resp.Status, raw)
	}

	var grant struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return "", err
	}
	if grant.ExpiresIn == 0 {
		grant.ExpiresIn = 86399
	}

	c.token = grant.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(grant.ExpiresIn) * time.Second)
	c.log.Info("obtained shopify access token",
		zap.Int64("expires_in", grant.ExpiresIn),
	)
	return c.token, nil
}

type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message    string `json:"message"`
		Extensions struct {
			Code string `json:"code"`
		} `json:"extensions"`
	} `json:"errors"`
	Extensions struct {
		Cost struct {
			ThrottleStatus struct {
				CurrentlyAvailable float64 `json:"currentlyAvailable"`
			} `json:"throttleStatus"`
		} `json:"cost"`
	} `json:"extensions"`
}

// Execute runs one GraphQL operation, retrying throttle responses with
// exponential backoff. Any other failure surfaces immediately so the
// caller can record it instead of hammering the API.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	op := func() error {
		err := c.execute(ctx, query, variables, out)
		if err == nil || errors.Is(err, ErrThrottled) {
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxAttempts)),
		ctx,
	)
	return backoff.Retry(op, bo)
}

func (c *Client) execute(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return backoff.Permanent(err)
	}

	payload := map[string]interface{}{"query": query}
	if variables != nil {
		payload["variables"] = variables
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrThrottled
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("shopify http %s: %s", resp.Status, raw)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}

	if len(env.Errors) > 0 {
		messages := make([]string, 0, len(env.Errors))
		for _, e := range env.Errors {
			if e.Extensions.Code == "THROTTLED" {
				return ErrThrottled
			}
			messages = append(messages, e.Message)
		}
		return &GraphQLError{Messages: messages}
	}

	// Cost-based back-off: when the available budget runs low, pause
	// long enough for the leak rate to refill it.
	if available := env.Extensions.Cost.ThrottleStatus.CurrentlyAvailable; available > 0 && available < rateLimitAvailableThreshold {
		wait := (rateLimitAvailableThreshold - available) / rateLimitRecoveryFactor
		if wait < 1 {
			wait = 1
		}
		c.log.Warn("shopify rate limit low",
			zap.Float64("available", available),
			zap.Float64("sleep_seconds", wait),
		)
		c.sleep(time.Duration(wait * float64(time.Second)))
	}

	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

// LocationID returns the store's first location, cached for the
// process lifetime.
func (c *Client) LocationID(ctx context.Context) (string, error) {
	c.locationMu.Lock()
	defer c.locationMu.Unlock()

	if c.locationID != "" {
		return c.locationID, nil
	}

	var data struct {
		Locations struct {
			Edges []struct {
				Node struct {
					ID string `json:"id"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"locations"`
	}
	if err := c.Execute(ctx, locationsQuery, nil, &data); err != nil {
		return "", err
	}
	if len(data.Locations.Edges) == 0 {
		return "", errors.New("no locations found in shopify store")
	}

	c.locationID = data.Locations.Edges[0].Node.ID
	return c.locationID, nil
}

// PublicationIDs returns all sales channel publications, cached for
// the process lifetime.
func (c *Client) PublicationIDs(ctx context.Context) ([]string, error) {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	if c.publicationIDs != nil {
		return c.publicationIDs, nil
	}

	var data struct {
		Publications struct {
			Edges []struct {
				Node struct {
					ID string `json:"id"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"publications"`
	}
	if err := c.Execute(ctx, publicationsQuery, nil, &data); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(data.Publications.Edges))
	for _, edge := range data.Publications.Edges {
		ids = append(ids, edge.Node.ID)
	}
	c.publicationIDs = ids
	return ids, nil
}
