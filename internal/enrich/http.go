package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/genricoloni/bluctl/internal/domain"
)

const (
	_userAgent   = "bluctl/1.0 (https://github.com/genricoloni/bluctl)"
	_maxJSONSize = 2 * 1024 * 1024 // 2 MB
)

// statusError is returned for non-200 responses so callers can branch on the code
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.code)
}

// getJSON performs a GET and decodes a JSON body into out
func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", _userAgent)
	req.Header.Set("Accept", "application/json")
	return doJSON(client, req, out)
}

func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %w", domain.ErrTransport, &statusError{code: resp.StatusCode})
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, _maxJSONSize)).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDecode, err)
	}
	return nil
}
