package evidence

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/goccy/go-json"
	"github.com/mselser95/phantombet/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// CoinGeckoName is the source name recorded in evidence entries.
	CoinGeckoName = "CoinGecko"

	coinGeckoConfidence = 0.9
)

// coinKeywords maps question words to CoinGecko coin ids.
//
//nolint:gochecknoglobals // static lookup table
var coinKeywords = map[string]string{
	"bitcoin":  "bitcoin",
	"btc":      "bitcoin",
	"ethereum": "ethereum",
	"eth":      "ethereum",
	"ether":    "ethereum",
	"solana":   "solana",
	"sol":      "solana",
	"dogecoin": "dogecoin",
	"doge":     "dogecoin",
	"xrp":      "ripple",
	"ripple":   "ripple",
	"cardano":  "cardano",
	"monad":    "monad",
}

// CoinGeckoSource reports spot prices for coins named in the question.
type CoinGeckoSource struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewCoinGeckoSource creates a price source. baseURL is the API root,
// for example https://api.coingecko.com/api/v3.
func NewCoinGeckoSource(baseURL string, timeout time.Duration, logger *zap.Logger) *CoinGeckoSource {
	return &CoinGeckoSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: defaultHTTPClient(timeout),
		logger:     logger,
	}
}

// Name implements Source.
func (s *CoinGeckoSource) Name() string {
	return CoinGeckoName
}

// CoinsMentioned returns the sorted CoinGecko ids named in a question.
func CoinsMentioned(question string) []string {
	words := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{})
	for _, w := range words {
		if id, ok := coinKeywords[w]; ok {
			seen[id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Fetch returns one "coin: price USD" line per coin in the question.
func (s *CoinGeckoSource) Fetch(ctx context.Context, question string) (types.Evidence, error) {
	ids := CoinsMentioned(question)
	if len(ids) == 0 {
		return types.Evidence{}, ErrNoData
	}

	params := url.Values{}
	params.Add("ids", strings.Join(ids, ","))
	params.Add("vs_currencies", "usd")
	requestURL := fmt.Sprintf("%s/simple/price?%s", s.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return types.Evidence{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	s.logger.Debug("fetching-prices", zap.Strings("coins", ids))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return types.Evidence{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Evidence{}, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return types.Evidence{}, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var prices map[string]map[string]decimal.Decimal
	err = json.Unmarshal(body, &prices)
	if err != nil {
		return types.Evidence{}, fmt.Errorf("unmarshal response: %w", err)
	}

	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		usd, ok := prices[id]["usd"]
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s USD", id, usd.StringFixed(2)))
	}
	if len(lines) == 0 {
		return types.Evidence{}, ErrNoData
	}

	return types.Evidence{
		Source:     CoinGeckoName,
		Payload:    "Current spot prices:\n" + strings.Join(lines, "\n"),
		Confidence: coinGeckoConfidence,
	}, nil
}
