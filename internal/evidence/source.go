package evidence

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mselser95/phantombet/pkg/types"
)

// ErrNoData means a source had nothing relevant to say about the question.
// It is not retried.
var ErrNoData = errors.New("source has no data for question")

// Source is one external evidence provider.
type Source interface {
	Name() string
	Fetch(ctx context.Context, question string) (types.Evidence, error)
}

const userAgent = "phantombet-oracle/1.0"

func defaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
