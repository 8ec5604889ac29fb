package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"chain-price-alerts/internal/chain"
)

const (
	moralisProvider = "moralis"
	moralisBaseURL  = "https://deep-index.moralis.io/api/v2.2"
)

// MoralisOptions parameterise the Moralis token price fetcher.
type MoralisOptions struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// Moralis fetches ERC-20 USD prices from the Moralis EVM API.
type Moralis struct {
	opts    MoralisOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewMoralis constructs a Moralis price fetcher.
func NewMoralis(opts MoralisOptions, logger zerolog.Logger) *Moralis {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = moralisBaseURL
	}

	return &Moralis{
		opts:    opts,
		logger:  logger.With().Str("component", "moralis_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchPrice retrieves the USD price of the chain's reference token.
func (m *Moralis) FetchPrice(ctx context.Context, c chain.Chain) (decimal.Decimal, error) {
	info, err := chain.Lookup(c)
	if err != nil {
		return decimal.Decimal{}, upstream(moralisProvider, c, err)
	}
	if m.opts.APIKey == "" {
		return decimal.Decimal{}, upstream(moralisProvider, c, errors.New("api key not configured"))
	}

	endpoint := fmt.Sprintf("%s/erc20/%s/price", m.baseURL, info.TokenAddress.Hex())
	query := url.Values{}
	query.Set("chain", info.MoralisChainID)
	query.Set("include", "percent_change")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return decimal.Decimal{}, upstream(moralisProvider, c, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", m.opts.APIKey)
	if ua := strings.TrimSpace(m.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "pricewatch/1.0")
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, upstream(moralisProvider, c, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, upstream(moralisProvider, c, err)
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, upstream(moralisProvider, c, parseHTTPError(resp.StatusCode, payload))
	}

	var res priceResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return decimal.Decimal{}, upstream(moralisProvider, c, fmt.Errorf("decode response: %w", err))
	}
	if res.USDPrice == nil {
		return decimal.Decimal{}, upstream(moralisProvider, c, errors.New("response missing usdPrice"))
	}
	if res.USDPrice.IsNegative() {
		return decimal.Decimal{}, upstream(moralisProvider, c, fmt.Errorf("negative price %s", res.USDPrice.String()))
	}

	m.logger.Debug().Str("chain", c.String()).Str("price", res.USDPrice.String()).Msg("fetched price")
	return *res.USDPrice, nil
}

type priceResponse struct {
	TokenName    string           `json:"tokenName"`
	TokenSymbol  string           `json:"tokenSymbol"`
	USDPrice     *decimal.Decimal `json:"usdPrice"`
	ExchangeName string           `json:"exchangeName"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("moralis api error (%d): %s", status, apiErr.Message)
	}
	if len(payload) > 0 {
		return fmt.Errorf("moralis api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("moralis api error (%d)", status)
}

var _ PriceSource = (*Moralis)(nil)
