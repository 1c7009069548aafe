package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tjfontaine/streamchat/internal/core/ports"
)

func (c *Client) newPostRequest(ctx context.Context, req *ports.ExchangeRequest) (*http.Request, error) {
	body, err := json.Marshal(ChatRequest{Message: req.Message})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}
