package evidence

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/mselser95/phantombet/pkg/types"
	"go.uber.org/zap"
)

const (
	// NewsAPIName is the source name recorded in evidence entries.
	NewsAPIName = "NewsAPI"

	newsAPIPageSize   = 5
	newsAPIConfidence = 0.8
)

type newsAPIResponse struct {
	Status       string `json:"status"`
	Code         string `json:"code"`
	Message      string `json:"message"`
	TotalResults int    `json:"totalResults"`
	Articles     []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

// NewsAPISource searches news articles matching the market question.
type NewsAPISource struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewNewsAPISource creates a NewsAPI source. baseURL is the API root,
// for example https://newsapi.org.
func NewNewsAPISource(baseURL string, apiKey string, timeout time.Duration, logger *zap.Logger) *NewsAPISource {
	return &NewsAPISource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: defaultHTTPClient(timeout),
		logger:     logger,
	}
}

// Name implements Source.
func (s *NewsAPISource) Name() string {
	return NewsAPIName
}

// Fetch returns the top articles as "title: description" lines.
func (s *NewsAPISource) Fetch(ctx context.Context, question string) (types.Evidence, error) {
	params := url.Values{}
	params.Add("q", question)
	params.Add("sortBy", "relevancy")
	params.Add("pageSize", fmt.Sprintf("%d", newsAPIPageSize))
	requestURL := fmt.Sprintf("%s/v2/everything?%s", s.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return types.Evidence{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Api-Key", s.apiKey)

	s.logger.Debug("fetching-news", zap.String("question", question))

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

	var parsed newsAPIResponse
	err = json.Unmarshal(body, &parsed)
	if err != nil {
		return types.Evidence{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if parsed.Status != "ok" {
		return types.Evidence{}, fmt.Errorf("newsapi error: %s %s", parsed.Code, parsed.Message)
	}

	lines := make([]string, 0, newsAPIPageSize)
	for _, a := range parsed.Articles {
		if len(lines) == newsAPIPageSize {
			break
		}
		if a.Title == "" && a.Description == "" {
			continue
		}
		lines = append(lines, a.Title+": "+a.Description)
	}
	if len(lines) == 0 {
		return types.Evidence{}, ErrNoData
	}

	return types.Evidence{
		Source:     NewsAPIName,
		Payload:    strings.Join(lines, "\n\n"),
		Confidence: newsAPIConfidence,
	}, nil
}
