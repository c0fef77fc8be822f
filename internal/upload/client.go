package upload

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

const defaultTimeout = 30 * time.Second

// Client is a small JSON client for the archive endpoint.
type Client struct {
	baseURL string
	agents  *fiber.Client

	mu      sync.RWMutex
	timeout time.Duration
	headers map[string]string
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		agents:  &fiber.Client{UserAgent: "stoperica"},
		timeout: defaultTimeout,
		headers: make(map[string]string),
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetHeader adds a header sent with every request, e.g. Authorization.
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[key] = value
}

func (c *Client) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// MakeRequest sends body as JSON when non-nil and fails on any non-2xx status.
func (c *Client) MakeRequest(method, endpoint string, body any, extra map[string]string) ([]byte, error) {
	a := c.agent(method, c.baseURL+endpoint)
	req := a.Request()

	c.mu.RLock()
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	a.Timeout(c.timeout)
	c.mu.RUnlock()
	for k, v := range extra {
		req.Header.Set(k, v)
	}
	if body != nil {
		a.JSON(body)
	}

	code, resp, errs := a.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to make request: %w", errs[0])
	}
	if code < 200 || code >= 300 {
		return nil, &StatusError{Code: code, Body: string(resp)}
	}
	return resp, nil
}

func (c *Client) agent(method, url string) *fiber.Agent {
	switch method {
	case fiber.MethodPost:
		return c.agents.Post(url)
	case fiber.MethodDelete:
		return c.agents.Delete(url)
	case fiber.MethodHead:
		return c.agents.Head(url)
	default:
		return c.agents.Get(url)
	}
}

func (c *Client) Get(endpoint string) ([]byte, error) {
	return c.MakeRequest(fiber.MethodGet, endpoint, nil, nil)
}

func (c *Client) Post(endpoint string, body any) ([]byte, error) {
	return c.MakeRequest(fiber.MethodPost, endpoint, body, nil)
}

func (c *Client) Delete(endpoint string, headers map[string]string) ([]byte, error) {
	return c.MakeRequest(fiber.MethodDelete, endpoint, nil, headers)
}

type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status code: %d, response: %s", e.Code, e.Body)
}
