package social

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sandeepkv93/social-publishing-core/internal/domain"
)

const maxResponseBody = 1 << 20

// Call describes one platform API round trip for error reporting.
type Call struct {
	Platform   domain.Platform
	Operation  string
	APIVersion string
}

// Do executes req and decodes a 2xx JSON body into out (which may be nil).
// Non-2xx responses become *domain.PlatformAPIError carrying the body.
func Do(client *http.Client, req *http.Request, call Call, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return &domain.PlatformAPIError{
			Platform:   call.Platform,
			Operation:  call.Operation,
			APIVersion: call.APIVersion,
			Body:       err.Error(),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", call.Platform, call.Operation, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.PlatformAPIError{
			Platform:   call.Platform,
			Operation:  call.Operation,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			APIVersion: call.APIVersion,
		}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &domain.PlatformAPIError{
			Platform:   call.Platform,
			Operation:  call.Operation,
			StatusCode: resp.StatusCode,
			Body:       "decode response: " + err.Error(),
			APIVersion: call.APIVersion,
		}
	}
	return nil
}
