package chat

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"

	"github.com/tjfontaine/streamchat/internal/core/domain"
	"github.com/tjfontaine/streamchat/internal/core/ports"
)

// newEventSourceRequest builds GET {endpoint}?message=<text>. Reconnection is
// never attempted: a replayed GET would resend the turn.
func (c *Client) newEventSourceRequest(ctx context.Context, req *ports.ExchangeRequest) (*http.Request, error) {
	u, err := url.Parse(c.Endpoint())
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("message", req.Message)
	u.RawQuery = q.Encode()

	return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
}

// checkEventStream rejects responses an EventSource would refuse to read.
func checkEventStream(resp *http.Response) error {
	ct := resp.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || mediaType != "text/event-stream" {
		return domain.ErrTransportFailure(
			fmt.Sprintf("unexpected content type %q", ct), nil,
		).WithCode(domain.ErrorCodeContentType).WithStatusCode(resp.StatusCode)
	}
	return nil
}
