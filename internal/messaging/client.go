// Package messaging предоставляет клиент внешнего шлюза сообщений (WhatsApp/SMS).
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrGatewayUnavailable возвращается, когда автомат защиты шлюза разомкнут.
var ErrGatewayUnavailable = errors.New("messaging gateway unavailable")

// RateLimitError возвращается, когда шлюз ответил 429 Too Many Requests.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("messaging gateway rate limited, retry after %s", e.RetryAfter)
}

// Client инкапсулирует HTTP-взаимодействие со шлюзом сообщений.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
}

type sendRequest struct {
	PhoneNumber string `json:"phone_number"`
	Body        string `json:"body"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

// NewClient создаёт клиент шлюза сообщений по указанному адресу.
func NewClient(baseURL, apiKey string, logger *zap.Logger) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	c := &Client{
		baseURL: base,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}

	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "messaging-gateway",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var rl *RateLimitError
			return err == nil || errors.As(err, &rl)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state changed",
					zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
			}
		},
	})

	return c
}

// SendMessage отправляет сообщение на номер телефона и возвращает идентификатор сообщения у провайдера.
func (c *Client) SendMessage(ctx context.Context, phoneNumber, body string) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", fmt.Errorf("messaging client not configured")
	}

	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.send(ctx, phoneNumber, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
		}
		return "", err
	}

	return res.(string), nil
}

func (c *Client) send(ctx context.Context, phoneNumber, body string) (string, error) {
	payload, err := json.Marshal(sendRequest{PhoneNumber: phoneNumber, Body: body})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return "", &RateLimitError{RetryAfter: retryAfter}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if result.MessageID == "" {
		return "", fmt.Errorf("empty message id")
	}

	return result.MessageID, nil
}
