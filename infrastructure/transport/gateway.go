package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

const defaultSendTimeout = 30 * time.Second

type sendMessagePayload struct {
	Target  string `json:"target"`
	Message string `json:"message"`
}

// GatewaySender delivers texts through the WhatsApp gateway's REST API.
// The gateway owns the actual device session; from the queue's point of view
// a delivery either lands (2xx) or it did not.
type GatewaySender struct {
	client  *fasthttp.Client
	baseURL string
	token   string
	timeout time.Duration
}

func NewGatewaySender(baseURL, token string, timeout time.Duration) *GatewaySender {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &GatewaySender{
		client: &fasthttp.Client{
			MaxIdleConnDuration: time.Minute,
		},
		baseURL: baseURL,
		token:   token,
		timeout: timeout,
	}
}

func (s *GatewaySender) SendText(ctx context.Context, target string, content string) error {
	body, err := json.Marshal(sendMessagePayload{Target: target, Message: content})
	if err != nil {
		return fmt.Errorf("encode send payload: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.baseURL + "/send/message")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	req.SetBody(body)

	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	if err := s.client.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("gateway send to %s: %w", target, err)
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		detail := resp.Body()
		if len(detail) > 200 {
			detail = detail[:200]
		}
		return fmt.Errorf("gateway send to %s: status %d: %s", target, status, detail)
	}
	return nil
}
