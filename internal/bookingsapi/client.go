// Package bookingsapi is a client for the bookings service's /v1 API.
package bookingsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/diagnosis/autoescola/internal/wizard"
	"github.com/diagnosis/autoescola/pkg/logger"
)

const CodeSlotTaken = "SLOT_TAKEN"

// Error is a non-2xx answer from the bookings service.
type Error struct {
	StatusCode int
	Message    string            `json:"error"`
	Code       string            `json:"code"`
	Details    map[string]string `json:"details"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

// IsSlotTaken reports whether err is the double-booking rejection.
func IsSlotTaken(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeSlotTaken
}

type DraftView struct {
	ID         string           `json:"id"`
	Step       int              `json:"step"`
	StepName   string           `json:"step_name"`
	Selection  wizard.Selection `json:"selection"`
	CanProceed bool             `json:"can_proceed"`
	Catalog    *wizard.Catalog  `json:"catalog,omitempty"`
}

type Lesson struct {
	ID              int64  `json:"id"`
	InstructorID    int64  `json:"instructor_id"`
	VehicleID       int64  `json:"vehicle_id"`
	Location        string `json:"location"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
}

type Submission struct {
	Lesson       *Lesson             `json:"lesson"`
	Confirmation wizard.Confirmation `json:"confirmation"`
	Title        string              `json:"title"`
	Message      string              `json:"message"`
	// Replayed is set when the server answered from its idempotency cache.
	Replayed bool `json:"-"`
}

type Progress struct {
	CompletedLessons int `json:"completed_lessons"`
	RequiredLessons  int `json:"required_lessons"`
	RemainingLessons int `json:"remaining_lessons"`
	Percentage       int `json:"percentage"`
}

type stepResult struct {
	Moved bool       `json:"moved"`
	Draft *DraftView `json:"draft"`
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Catalog(ctx context.Context) (*wizard.Catalog, error) {
	var cat wizard.Catalog
	if err := c.do(ctx, http.MethodGet, "/v1/catalog", nil, nil, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

func (c *Client) StartWizard(ctx context.Context) (*DraftView, error) {
	var v DraftView
	if err := c.do(ctx, http.MethodPost, "/v1/wizards", nil, nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) SetDateTime(ctx context.Context, id, date, slot string) (*DraftView, error) {
	return c.put(ctx, id, "datetime", map[string]string{"date": date, "time": slot})
}

func (c *Client) SelectInstructor(ctx context.Context, id string, instructorID int64) (*DraftView, error) {
	return c.put(ctx, id, "instructor", map[string]int64{"instructor_id": instructorID})
}

func (c *Client) SelectVehicle(ctx context.Context, id string, vehicleID int64) (*DraftView, error) {
	return c.put(ctx, id, "vehicle", map[string]int64{"vehicle_id": vehicleID})
}

func (c *Client) SelectLocation(ctx context.Context, id, location string) (*DraftView, error) {
	return c.put(ctx, id, "location", map[string]string{"location": location})
}

// Advance returns whether the step moved.
func (c *Client) Advance(ctx context.Context, id string) (*DraftView, bool, error) {
	var res stepResult
	if err := c.do(ctx, http.MethodPost, "/v1/wizards/"+id+"/advance", nil, nil, &res); err != nil {
		return nil, false, err
	}
	return res.Draft, res.Moved, nil
}

// Submit confirms the draft. An empty idempotencyKey gets a fresh one.
func (c *Client) Submit(ctx context.Context, id, idempotencyKey string) (*Submission, error) {
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	var sub Submission
	headers := map[string]string{"Idempotency-Key": idempotencyKey}
	respHeader, err := c.send(ctx, http.MethodPost, "/v1/wizards/"+id+"/submit", nil, headers, &sub)
	if err != nil {
		return nil, err
	}
	sub.Replayed = respHeader.Get("Idempotent-Replayed") == "true"
	return &sub, nil
}

func (c *Client) Discard(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/wizards/"+id, nil, nil, nil)
}

func (c *Client) Progress(ctx context.Context) (*Progress, error) {
	var p Progress
	if err := c.do(ctx, http.MethodGet, "/v1/students/me/progress", nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) put(ctx context.Context, id, field string, body any) (*DraftView, error) {
	var v DraftView
	if err := c.do(ctx, http.MethodPut, "/v1/wizards/"+id+"/"+field, body, nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	_, err := c.send(ctx, method, path, body, headers, out)
	return err
}

// send is do that also returns the response headers.
func (c *Client) send(ctx context.Context, method, path string, body any, headers map[string]string, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	logger.DebugContext(ctx, "Bookings API request", "method", method, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return resp.Header, apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.Header, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.Header, fmt.Errorf("decode %s response: %w", path, err)
	}
	return resp.Header, nil
}
