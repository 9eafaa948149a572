// Package poster предоставляет клиент для Poster API и разбор его ответов.
package poster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Способы передачи токена, поддерживаемые Poster API.
const (
	AuthQueryToken       = "query_token"
	AuthQueryAccessToken = "query_access_token"
	AuthBearer           = "bearer"
)

// ErrConfig возвращается при отсутствующих или некорректных настройках клиента.
var (
	ErrConfig = errors.New("poster client is not configured")
	// ErrAPI возвращается при сбое транспорта, неуспешном HTTP-статусе
	// или невалидном JSON в ответе.
	ErrAPI = errors.New("poster api request failed")
)

// Client инкапсулирует HTTP-взаимодействие с Poster API.
type Client struct {
	baseURL    string
	token      string
	authStyle  string
	httpClient *http.Client
}

// NewClient создаёт клиент Poster API. retryMax задаёт число повторов
// на транспортном уровне; 0 сохраняет поведение «один запрос без повторов».
func NewClient(baseURL, token, authStyle string, timeout time.Duration, retryMax int) (*Client, error) {
	var missing []string
	if baseURL == "" {
		missing = append(missing, "POSTER_API_BASE_URL")
	}
	if token == "" {
		missing = append(missing, "POSTER_API_TOKEN")
	}
	if authStyle == "" {
		missing = append(missing, "POSTER_AUTH_STYLE")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing settings: %s", ErrConfig, strings.Join(missing, ", "))
	}

	switch authStyle {
	case AuthQueryToken, AuthQueryAccessToken, AuthBearer:
	default:
		return nil, fmt.Errorf("%w: unknown auth style %q, use %q, %q or %q",
			ErrConfig, authStyle, AuthQueryToken, AuthQueryAccessToken, AuthBearer)
	}

	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.Logger = nil
	rc.HTTPClient.Timeout = timeout

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		authStyle:  authStyle,
		httpClient: rc.StandardClient(),
	}, nil
}

func (c *Client) applyAuth(query url.Values, header http.Header) error {
	switch c.authStyle {
	case AuthQueryToken:
		query.Set("token", c.token)
	case AuthQueryAccessToken:
		query.Set("access_token", c.token)
	case AuthBearer:
		header.Set("Authorization", "Bearer "+c.token)
	default:
		return fmt.Errorf("%w: unknown auth style %q", ErrConfig, c.authStyle)
	}
	return nil
}

// Request выполняет запрос к Poster API и возвращает тело ответа как JSON.
// jsonBody и formBody взаимоисключающие; оба могут быть пустыми.
func (c *Client) Request(ctx context.Context, method, path string, query url.Values, jsonBody any, formBody url.Values) (json.RawMessage, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("%w: empty base URL", ErrConfig)
	}

	q := url.Values{}
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}

	header := http.Header{}
	if err := c.applyAuth(q, header); err != nil {
		return nil, err
	}

	var body io.Reader
	switch {
	case jsonBody != nil:
		encoded, err := json.Marshal(jsonBody)
		if err != nil {
			return nil, fmt.Errorf("encode json body: %w", err)
		}
		body = bytes.NewReader(encoded)
		header.Set("Content-Type", "application/json")
	case formBody != nil:
		body = strings.NewReader(formBody.Encode())
		header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.URL.RawQuery = q.Encode()
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrAPI, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %s", ErrAPI, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: unexpected status %d for %s", ErrAPI, resp.StatusCode, path)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: response is not valid JSON", ErrAPI)
	}

	return json.RawMessage(data), nil
}

// Get выполняет GET-запрос к указанному пути Poster API.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	return c.Request(ctx, http.MethodGet, path, query, nil, nil)
}

// GetTransactions возвращает чеки за период, даты в формате YYYYMMDD.
func (c *Client) GetTransactions(ctx context.Context, dateFrom, dateTo string) (json.RawMessage, error) {
	return c.Get(ctx, "dash.getTransactions", url.Values{
		"dateFrom": {dateFrom},
		"dateTo":   {dateTo},
	})
}

// GetPaymentsReport возвращает сводку по оплатам за период.
func (c *Client) GetPaymentsReport(ctx context.Context, dateFrom, dateTo string) (json.RawMessage, error) {
	return c.Get(ctx, "dash.getPaymentsReport", url.Values{
		"date_from": {dateFrom},
		"date_to":   {dateTo},
	})
}

// GetProductsSales возвращает сводку продаж по товарам за период.
func (c *Client) GetProductsSales(ctx context.Context, dateFrom, dateTo string) (json.RawMessage, error) {
	return c.Get(ctx, "dash.getProductsSales", url.Values{
		"dateFrom": {dateFrom},
		"dateTo":   {dateTo},
	})
}

// GetSpotsSales возвращает сводку продаж по торговым точкам за период.
func (c *Client) GetSpotsSales(ctx context.Context, dateFrom, dateTo string) (json.RawMessage, error) {
	return c.Get(ctx, "dash.getSpotsSales", url.Values{
		"dateFrom": {dateFrom},
		"dateTo":   {dateTo},
	})
}

// GetSpots возвращает справочник торговых точек.
func (c *Client) GetSpots(ctx context.Context) (json.RawMessage, error) {
	return c.Get(ctx, "spots.getSpots", nil)
}
