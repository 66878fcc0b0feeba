package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vo-performance-bot/internal/performance"
)

const (
	defaultSSVBaseURL = "https://api.ssv.network"
	defaultNetwork    = "mainnet"
	defaultPerPage    = 100
	verifiedType      = "verified_operator"
	unknownName       = "Unknown Name"
)

// scorePlaces is the precision scores are stored with.
const scorePlaces int32 = 6

var hundred = decimal.NewFromInt(100)

// SSVOptions parameterise the SSV operators API client.
type SSVOptions struct {
	BaseURL   string
	Network   string
	PerPage   int
	Timeout   time.Duration
	UserAgent string
	// MaxPages bounds pagination. Zero means no bound.
	MaxPages  int
}

// SSV pages through the public SSV operators API.
type SSV struct {
	opts    SSVOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewSSV constructs an SSV operators client.
func NewSSV(opts SSVOptions, logger zerolog.Logger) *SSV {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultSSVBaseURL
	}
	if strings.TrimSpace(opts.Network) == "" {
		opts.Network = defaultNetwork
	}
	if opts.PerPage <= 0 {
		opts.PerPage = defaultPerPage
	}

	return &SSV{
		opts:    opts,
		logger:  logger.With().Str("component", "ssv_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchOperators walks every page until the API returns an empty list and
// keeps operators that run at least one validator.
func (s *SSV) FetchOperators(ctx context.Context) ([]Operator, error) {
	var out []Operator
	for page := 1; s.opts.MaxPages <= 0 || page <= s.opts.MaxPages; page++ {
		items, err := s.fetchPage(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}
		if len(items) == 0 {
			break
		}
		for _, item := range items {
			op, err := item.operator()
			if err != nil {
				s.logger.Warn().Err(err).Int64("operator_id", item.ID).Msg("skipping operator with unreadable fields")
				continue
			}
			if op.ValidatorCount <= 0 {
				continue
			}
			out = append(out, op)
		}
		s.logger.Debug().Int("page", page).Int("items", len(items)).Msg("operators page fetched")
	}
	return out, nil
}

func (s *SSV) fetchPage(ctx context.Context, page int) ([]operatorItem, error) {
	q := url.Values{}
	q.Set("validatorsCount", "true")
	q.Set("page", strconv.Itoa(page))
	q.Set("perPage", strconv.Itoa(s.opts.PerPage))
	endpoint := fmt.Sprintf("%s/api/v4/%s/operators/?%s", s.baseURL, url.PathEscape(s.opts.Network), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "vopbot/1.0")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	var res operatorsResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode operators: %w", err)
	}
	return res.Operators, nil
}

type operatorsResponse struct {
	Operators []operatorItem `json:"operators"`
}

type operatorItem struct {
	ID              int64                  `json:"id"`
	Name            string                 `json:"name"`
	ValidatorsCount json.Number            `json:"validators_count"`
	OwnerAddress    string                 `json:"owner_address"`
	Type            string                 `json:"type"`
	IsPrivate       bool                   `json:"is_private"`
	Performance     map[string]json.Number `json:"performance"`
}

func (it operatorItem) operator() (Operator, error) {
	count := 0
	if it.ValidatorsCount != "" {
		n, err := it.ValidatorsCount.Int64()
		if err != nil {
			return Operator{}, fmt.Errorf("validators_count: %w", err)
		}
		count = int(n)
	}
	perf24h, err := it.score(performance.Horizon24h)
	if err != nil {
		return Operator{}, err
	}
	perf30d, err := it.score(performance.Horizon30d)
	if err != nil {
		return Operator{}, err
	}
	name := strings.TrimSpace(it.Name)
	if name == "" {
		name = unknownName
	}
	return Operator{
		ID:             it.ID,
		Name:           name,
		ValidatorCount: count,
		Verified:       it.Type == verifiedType,
		Private:        it.IsPrivate,
		Address:        performance.NormalizeAddress(it.OwnerAddress),
		Perf24h:        perf24h,
		Perf30d:        perf30d,
	}, nil
}

// score reads a percentage from the performance map. A missing key counts as zero.
func (it operatorItem) score(h performance.Horizon) (decimal.Decimal, error) {
	raw, ok := it.Performance[string(h)]
	if !ok || raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("performance %s: %w", h, err)
	}
	return d.Div(hundred).Round(scorePlaces), nil
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("ssv api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("ssv api error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("ssv api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("ssv api error (%d)", status)
}

var _ OperatorSource = (*SSV)(nil)
