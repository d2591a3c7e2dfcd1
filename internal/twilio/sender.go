package twilio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	messagesURLFormat = "https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json"
	sendAttempts      = 2
)

// ErrSendRejected reports that the messaging API refused the request; the
// send must not be retried with the same input.
var ErrSendRejected = errors.New("message rejected by messaging api")

// Sender delivers SMS messages through the Twilio REST API. Transient
// failures are retried a small fixed number of times with a linear backoff:
// this path is user-facing, so it must not stall the way account
// provisioning is allowed to.
type Sender struct {
	http       *http.Client
	url        string
	accountSID string
	authToken  string
	from       string
	attempts   int
	backoff    func(attempt int) time.Duration
	logger     *slog.Logger
}

// NewSender builds a sender for the given Twilio account, sending from the
// configured number.
func NewSender(accountSID, authToken, from string, timeout time.Duration, logger *slog.Logger) *Sender {
	return &Sender{
		http:       &http.Client{Timeout: timeout},
		url:        fmt.Sprintf(messagesURLFormat, accountSID),
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		attempts:   sendAttempts,
		backoff:    linearBackoff,
		logger:     logger,
	}
}

func linearBackoff(attempt int) time.Duration {
	return 1500*time.Millisecond + time.Duration(attempt)*10*time.Second
}

// SendCredentials texts the generated login email and password to the
// sender who just registered.
func (s *Sender) SendCredentials(ctx context.Context, to, email, password string) error {
	body := fmt.Sprintf("Your Coder account is ready.\n\nemail: %s\n\npw: %s", email, password)

	var lastErr error
	for attempt := 0; attempt < s.attempts; attempt++ {
		err := s.send(ctx, to, body)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrSendRejected) {
			return err
		}
		lastErr = err

		if attempt < s.attempts-1 {
			s.logger.Warn("transient send failure, retrying", "error", err)
			timer := time.NewTimer(s.backoff(attempt))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("send exceeded %d attempts: %w", s.attempts, lastErr)
}

func (s *Sender) send(ctx context.Context, to, body string) error {
	form := url.Values{}
	form.Set("Body", body)
	form.Set("To", to)
	form.Set("From", s.from)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		s.logger.Error("message send rejected", "status", resp.StatusCode, "body", string(respBody))
		return fmt.Errorf("%w: status %d", ErrSendRejected, resp.StatusCode)
	}

	return nil
}
