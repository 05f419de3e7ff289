package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/diagnosis/autoescola/internal/accounts"
	"github.com/diagnosis/autoescola/pkg/logger"
)

// ErrTransport marks requests that never produced an HTTP response.
var (
	ErrTransport = accounts.ErrUnavailable
	ErrNoToken   = accounts.ErrNoToken
)

const (
	registerPath = "/auth/api/register/%s/"
	loginPath    = "/auth/api/login/"
	logoutPath   = "/auth/api/logout/"
	mePath       = "/auth/api/me/"

	csrfCookie = "csrftoken"
)

// APIError is a non-2xx answer from the auth backend.
type APIError struct {
	StatusCode int
	Message    string
	Details    map[string]string
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) FieldErrors() map[string]string {
	return e.Details
}

// ID accepts both numeric and string identifiers.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", b, err)
	}
	*id = ID(n.String())
	return nil
}

type UserInfo struct {
	ID       ID     `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role,omitempty"`
}

type LoginResult struct {
	AccessToken string    `json:"access_token"`
	User        *UserInfo `json:"user"`
}

type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
	}, nil
}

// SetToken sets the bearer token sent on every request. Empty clears it.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Register submits a role-specific registration. A photo switches the body
// to multipart/form-data.
func (c *Client) Register(ctx context.Context, reg *accounts.Registration) error {
	path := fmt.Sprintf(registerPath, reg.Role)

	var (
		body        io.Reader
		contentType string
	)
	if reg.Photo != nil {
		buf, ct, err := multipartRegistration(reg)
		if err != nil {
			return err
		}
		body, contentType = buf, ct
	} else {
		payload, err := json.Marshal(map[string]string{
			"email":     reg.Email,
			"password":  reg.Password,
			"full_name": reg.FullName,
			"phone":     reg.Phone,
		})
		if err != nil {
			return fmt.Errorf("encode registration: %w", err)
		}
		body, contentType = bytes.NewReader(payload), "application/json"
	}

	return c.do(ctx, http.MethodPost, path, body, contentType, nil)
}

func multipartRegistration(reg *accounts.Registration) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	fields := [][2]string{
		{"email", reg.Email},
		{"password", reg.Password},
		{"full_name", reg.FullName},
		{"phone", reg.Phone},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}

	part, err := w.CreateFormFile("photo", reg.Photo.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("create photo part: %w", err)
	}
	if reg.Photo.Content != nil {
		if _, err := io.Copy(part, io.LimitReader(reg.Photo.Content, accounts.MaxPhotoBytes+1)); err != nil {
			return nil, "", fmt.Errorf("copy photo: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	payload, err := json.Marshal(accounts.Credentials{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("encode credentials: %w", err)
	}

	var res LoginResult
	if err := c.do(ctx, http.MethodPost, loginPath, bytes.NewReader(payload), "application/json", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, logoutPath, nil, "", nil)
}

func (c *Client) Me(ctx context.Context) (*UserInfo, error) {
	var u UserInfo
	if err := c.do(ctx, http.MethodGet, mePath, nil, "", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method != http.MethodGet {
		if csrf := c.csrfToken(); csrf != "" {
			req.Header.Set("X-CSRFToken", csrf)
		}
	}
	if requestID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		req.Header.Set("X-Request-ID", requestID)
	}

	logger.DebugContext(ctx, "Auth API request", "method", method, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) csrfToken() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	for _, ck := range c.http.Jar.Cookies(u) {
		if ck.Name == csrfCookie {
			return ck.Value
		}
	}
	return ""
}

type errorBody struct {
	Error   string                     `json:"error"`
	Message string                     `json:"message"`
	Detail  string                     `json:"detail"`
	Errors  map[string]json.RawMessage `json:"errors"`
}

func decodeAPIError(status int, raw []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		switch {
		case body.Error != "":
			apiErr.Message = body.Error
		case body.Message != "":
			apiErr.Message = body.Message
		case body.Detail != "":
			apiErr.Message = body.Detail
		}
		if len(body.Errors) > 0 {
			apiErr.Details = make(map[string]string, len(body.Errors))
			for field, v := range body.Errors {
				apiErr.Details[field] = fieldMessage(v)
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = "HTTP " + strconv.Itoa(status) + " " + http.StatusText(status)
	}
	return apiErr
}

// fieldMessage flattens a per-field error that may be a string or a list.
func fieldMessage(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(v, &list); err == nil {
		sort.Strings(list)
		return strings.Join(list, "; ")
	}
	return string(v)
}
