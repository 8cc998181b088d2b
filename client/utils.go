package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// ApiError is returned for any non 2xx response. Rule is set when the request was
// denied by the authorization policy.
type ApiError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Message    string
	Rule       string
}

func (e *ApiError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("%v request to endpoint %v returned status %d (%v): %v", e.Method, e.Endpoint, e.StatusCode, e.Rule, e.Message)
	}
	return fmt.Sprintf("%v request to endpoint %v returned status %d: %v", e.Method, e.Endpoint, e.StatusCode, e.Message)
}

// StatusCode returns the http status of a failed request, or 0 if err is not an ApiError.
func StatusCode(err error) int {
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

type loginInfo struct {
	email, password string
}

type httpRequest struct {
	client      *http.Client
	method      string
	baseUrl     string
	endpoint    string
	headers     map[string]string
	queryParams map[string]string
	json        interface{}
	body        io.Reader
	login       *loginInfo
}

func newHttpRequest(client *http.Client, method, baseUrl, endpoint string) *httpRequest {
	return &httpRequest{client: client, method: method, baseUrl: baseUrl, endpoint: endpoint}
}

func (r *httpRequest) Header(key, value string) *httpRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpRequest) Login(email, password string) *httpRequest {
	r.login = &loginInfo{email: email, password: password}
	return r
}

func (r *httpRequest) Auth(token string) *httpRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpRequest) Json(data interface{}) *httpRequest {
	r.json = data
	return r
}

func (r *httpRequest) Param(key, value string) *httpRequest {
	if r.queryParams == nil {
		r.queryParams = make(map[string]string)
	}
	r.queryParams[key] = value
	return r
}

func (r *httpRequest) Do(result interface{}) error {
	fullEndpoint, err := url.JoinPath(r.baseUrl, r.endpoint)
	if err != nil {
		return fmt.Errorf("error formatting url for endpoint %v: %w", r.endpoint, err)
	}

	if r.json != nil {
		body := new(bytes.Buffer)
		if err := json.NewEncoder(body).Encode(r.json); err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req, err := http.NewRequest(r.method, fullEndpoint, r.body)
	if err != nil {
		return fmt.Errorf("error creating %v request for endpoint %v: %w", r.method, r.endpoint, err)
	}

	for k, v := range r.headers {
		req.Header.Add(k, v)
	}
	if r.json != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if r.login != nil {
		req.SetBasicAuth(r.login.email, r.login.password)
	}

	if r.queryParams != nil {
		query := req.URL.Query()
		for k, v := range r.queryParams {
			query.Add(k, v)
		}
		req.URL.RawQuery = query.Encode()
	}

	start := time.Now()

	res, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending %v request to endpoint %v: %w", r.method, r.endpoint, err)
	}
	defer res.Body.Close()

	slog.Debug("crm client", "method", r.method, "endpoint", r.endpoint, "status", res.StatusCode, "duration", time.Since(start).String())

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := &ApiError{Method: r.method, Endpoint: r.endpoint, StatusCode: res.StatusCode}
		content, err := io.ReadAll(res.Body)
		if err != nil {
			return apiErr
		}
		var body struct {
			Error string `json:"error"`
			Rule  string `json:"rule"`
		}
		if json.Unmarshal(content, &body) == nil && body.Error != "" {
			apiErr.Message, apiErr.Rule = body.Error, body.Rule
		} else {
			apiErr.Message = string(bytes.TrimSpace(content))
		}
		return apiErr
	}

	if result != nil && res.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(res.Body).Decode(result); err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

type BaseClient struct {
	baseUrl    string
	authToken  string
	httpClient *http.Client
}

func NewBaseClient(baseUrl string, authToken string) BaseClient {
	return BaseClient{baseUrl: baseUrl, authToken: authToken, httpClient: &http.Client{Timeout: 30 * time.Second}}
}

func (c *BaseClient) request(method, endpoint string) *httpRequest {
	r := newHttpRequest(c.httpClient, method, c.baseUrl, endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *BaseClient) Get(endpoint string) *httpRequest {
	return c.request("GET", endpoint)
}

func (c *BaseClient) Post(endpoint string) *httpRequest {
	return c.request("POST", endpoint)
}

func (c *BaseClient) Patch(endpoint string) *httpRequest {
	return c.request("PATCH", endpoint)
}

func (c *BaseClient) Delete(endpoint string) *httpRequest {
	return c.request("DELETE", endpoint)
}
