package meals

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Meal is one dish made of several text lines.
type Meal struct {
	Lines []string `json:"meals"`
}

// Day is the menu of one day, labeled the way the menu service labels it.
type Day struct {
	Name  string
	Meals []Meal
}

type Client struct {
	http    *http.Client
	baseURL string
}

func New(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{http: httpClient, baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/")}
}

// Days returns the menus of num days starting offset days from today.
//
// The menu service answers GET <base>/<n> with the next n menu days, so the
// window is the difference between the answers for offset+num and offset.
func (c *Client) Days(ctx context.Context, offset, num int) ([]Day, error) {
	if c == nil || c.http == nil {
		return nil, fmt.Errorf("meals client is not initialized")
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("meals url is required")
	}
	if offset < 0 || num < 0 {
		return nil, fmt.Errorf("invalid meal window offset=%d num=%d", offset, num)
	}
	skip, err := c.fetch(ctx, offset)
	if err != nil {
		return nil, err
	}
	all, err := c.fetch(ctx, offset+num)
	if err != nil {
		return nil, err
	}
	if len(all) <= len(skip) {
		return nil, nil
	}
	return all[len(skip):], nil
}

// Food returns the chat text for Days(offset, num).
func (c *Client) Food(ctx context.Context, offset, num int) (string, error) {
	days, err := c.Days(ctx, offset, num)
	if err != nil {
		return "", err
	}
	return Format(days), nil
}

// Format renders days as a fenced block.
func Format(days []Day) string {
	lines := []string{"```"}
	for _, d := range days {
		lines = append(lines, d.Name)
		for j, m := range d.Meals {
			lines = append(lines, fmt.Sprintf("  Meal: %d", j+1))
			for _, l := range m.Lines {
				lines = append(lines, "    "+l)
			}
		}
	}
	if len(lines) == 1 {
		lines = append(lines, "No meals received.")
	}
	lines = append(lines, "```")
	return strings.Join(lines, "\n")
}

func (c *Client) fetch(ctx context.Context, n int) ([]Day, error) {
	url := c.baseURL + "/" + strconv.Itoa(n)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch meals: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch meals: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	days, err := decodeDays(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode meals: %w", err)
	}
	return days, nil
}

// decodeDays reads {"<day>": [meal, ...], ...} keeping the key order of the
// document, which carries the calendar order.
func decodeDays(r io.Reader) ([]Day, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	var days []Day
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected day name, got %v", tok)
		}
		var meals []Meal
		if err := dec.Decode(&meals); err != nil {
			return nil, fmt.Errorf("day %q: %w", name, err)
		}
		days = append(days, Day{Name: name, Meals: meals})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return days, nil
}
