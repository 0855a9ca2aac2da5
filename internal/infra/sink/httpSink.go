package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"portfolio-chat/internal/domain/dto"

	"github.com/go-resty/resty/v2"
)

const (
	LogPath    = "/api/chat/log"
	AppendPath = "/api/chat/log/append"
)

// StatusError is returned when the chat log endpoint answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chat log endpoint returned %d", e.StatusCode)
	}
	return fmt.Sprintf("chat log endpoint returned %d: %s", e.StatusCode, e.Message)
}

// HTTPSink posts transcripts to the chat log server.
type HTTPSink struct {
	client  *resty.Client
	path    string
	timeout time.Duration
}

// NewHTTPSink posts to the full-replace endpoint, or to the append endpoint when appendOnly
// is set.
func NewHTTPSink(baseURL string, appendOnly bool, timeout time.Duration) *HTTPSink {
	path := LogPath
	if appendOnly {
		path = AppendPath
	}
	return &HTTPSink{
		client:  resty.New().SetBaseURL(baseURL),
		path:    path,
		timeout: timeout,
	}
}

func (s *HTTPSink) Send(ctx context.Context, request dto.ChatLogRequest) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(request).
		Post(s.path)
	if err != nil {
		return fmt.Errorf("post %s: %w", s.path, err)
	}

	if !res.IsSuccess() {
		statusErr := &StatusError{StatusCode: res.StatusCode(), Message: res.String()}
		var body dto.ChatLogResponse
		if json.Unmarshal(res.Body(), &body) == nil && body.Error != "" {
			statusErr.Message = body.Error
		}
		return statusErr
	}
	return nil
}
