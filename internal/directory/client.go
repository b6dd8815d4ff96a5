// Package directory fetches live item records from the external item directory.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cuongbtq/item-triage/internal/triage/domain"
)

// ErrDirectoryUnavailable is returned when the directory keeps failing after all retries
var ErrDirectoryUnavailable = errors.New("item directory unavailable")

// Config holds directory client configuration
type Config struct {
	Logger       *slog.Logger
	BaseURL      string
	Timeout      time.Duration
	MaxAttempts  int
	Backoff      time.Duration
	Institutions domain.InstitutionStore
}

// Client looks items up by barcode using the owning institution's API key
type Client struct {
	logger       *slog.Logger
	baseURL      string
	maxAttempts  int
	backoff      time.Duration
	institutions domain.InstitutionStore
	client       *http.Client
}

// NewClient creates a directory client
func NewClient(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	interval := cfg.Backoff
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Client{
		logger:       cfg.Logger,
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		maxAttempts:  attempts,
		backoff:      interval,
		institutions: cfg.Institutions,
		client:       &http.Client{Timeout: timeout},
	}
}

// wire format of the directory's item endpoint
type itemResponse struct {
	ItemData struct {
		Barcode               string    `json:"barcode"`
		Location              codeValue `json:"location"`
		AlternativeCallNumber string    `json:"alternative_call_number"`
		InternalNote1         string    `json:"internal_note_1"`
		Provenance            codeValue `json:"provenance"`
	} `json:"item_data"`
	HoldingData struct {
		TempLocation codeValue `json:"temp_location"`
	} `json:"holding_data"`
}

type codeValue struct {
	Value string `json:"value"`
	Desc  string `json:"desc"`
}

// FetchItem returns the current record for itemKey. Missing items yield
// domain.ErrItemNotFound without retrying; server errors, throttling and
// transport failures are retried with exponential backoff.
func (c *Client) FetchItem(ctx context.Context, institutionCode, itemKey string) (*domain.Item, error) {
	institution, err := c.institutions.GetByCode(ctx, institutionCode)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve institution %s: %w", institutionCode, err)
	}

	u := fmt.Sprintf("%s/items?%s", c.baseURL, url.Values{"item_barcode": {itemKey}}.Encode())

	var item *domain.Item
	attempt := 0
	op := func() error {
		attempt++
		got, err := c.fetch(ctx, u, institution.APIKey)
		if err != nil {
			if attempt < c.maxAttempts && !isPermanent(err) {
				c.logger.Warn("Item directory request failed, retrying",
					slog.String("item_key", itemKey),
					slog.Int("attempt", attempt),
					slog.String("error", err.Error()),
				)
			}
			return err
		}
		item = got
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.backoff
	policy.MaxElapsedTime = 0

	err = backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxAttempts-1)), ctx))
	if err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	item.InstitutionCode = institutionCode
	if item.Barcode == "" {
		item.Barcode = itemKey
	}
	return item, nil
}

func (c *Client) fetch(ctx context.Context, u, apiKey string) (*domain.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "apikey "+apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(domain.ErrItemNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("directory returned status %d", resp.StatusCode)
	default:
		return nil, backoff.Permanent(fmt.Errorf("directory returned status %d", resp.StatusCode))
	}

	var body itemResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode item: %w", err))
	}

	return &domain.Item{
		Barcode:               body.ItemData.Barcode,
		Location:              body.ItemData.Location.Value,
		TempLocation:          body.HoldingData.TempLocation.Value,
		AlternativeCallNumber: body.ItemData.AlternativeCallNumber,
		InternalNote1:         body.ItemData.InternalNote1,
		Provenance:            body.ItemData.Provenance.Desc,
	}, nil
}

func isPermanent(err error) bool {
	var permanent *backoff.PermanentError
	return errors.As(err, &permanent)
}
