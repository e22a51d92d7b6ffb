// Package rosterclient calls the external enrollment service for roster and
// enrollment lookups. The attendance engine never owns enrollment data.
package rosterclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"rollcall/internal/attendance"
)

// Client calls the enrollment microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. With skip set, all lookups return canned dev data so
// the engine runs without the enrollment service.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// IsEnrolled reports whether the user holds an active enrollment in the class.
func (c *Client) IsEnrolled(ctx context.Context, classID, userID string) (bool, error) {
	if c.Skip {
		return true, nil
	}
	if classID == "" || userID == "" {
		return false, fmt.Errorf("class and user required")
	}

	var out struct {
		Enrolled bool `json:"enrolled"`
	}
	path := fmt.Sprintf("/classes/%s/enrollments/%s", url.PathEscape(classID), url.PathEscape(userID))
	if err := c.get(ctx, path, &out); err != nil {
		return false, err
	}
	return out.Enrolled, nil
}

// RosterSize returns the number of actively enrolled students.
func (c *Client) RosterSize(ctx context.Context, classID string) (int, error) {
	if c.Skip {
		return 3, nil
	}

	var out struct {
		Total int `json:"total"`
	}
	path := fmt.Sprintf("/classes/%s/enrollments/count", url.PathEscape(classID))
	if err := c.get(ctx, path, &out); err != nil {
		return 0, err
	}
	return out.Total, nil
}

// Roster returns id and display name for every enrolled student.
func (c *Client) Roster(ctx context.Context, classID string) ([]attendance.Student, error) {
	if c.Skip {
		return []attendance.Student{
			{ID: "student-1", Name: "Dev Student One"},
			{ID: "student-2", Name: "Dev Student Two"},
			{ID: "student-3", Name: "Dev Student Three"},
		}, nil
	}

	var out struct {
		Students []attendance.Student `json:"students"`
	}
	path := fmt.Sprintf("/classes/%s/enrollments", url.PathEscape(classID))
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Students, nil
}

// Health probes the enrollment service.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("enrollment service unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("enrollment service unhealthy: %s", resp.Status)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("enrollment service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("enrollment service error %s: %s", resp.Status, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
