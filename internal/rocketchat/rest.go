package rocketchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const apiPrefix = "/api/v1"

// RESTClient is a small client for the Rocket.Chat REST API.
type RESTClient struct {
	http        *http.Client
	baseURL     string
	maxAttempts int
	userID      string
	token       string
}

func NewRESTClient(httpClient *http.Client, baseURL string) *RESTClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RESTClient{
		http:        httpClient,
		baseURL:     strings.TrimSpace(strings.TrimRight(baseURL, "/")),
		maxAttempts: 5,
	}
}

type apiStatus struct {
	Success *bool  `json:"success,omitempty"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s apiStatus) failed() bool {
	if s.Success != nil && !*s.Success {
		return true
	}
	return s.Status == "error"
}

func (s apiStatus) text() string {
	if s.Error != "" {
		return s.Error
	}
	return s.Message
}

// Login authenticates with username and password and keeps the returned
// token for later requests.
func (c *RESTClient) Login(ctx context.Context, username, password string) error {
	var out struct {
		apiStatus
		Data struct {
			UserID    string `json:"userId"`
			AuthToken string `json:"authToken"`
		} `json:"data"`
	}
	body := map[string]string{"user": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "login", nil, body, &out); err != nil {
		return err
	}
	if out.Data.AuthToken == "" || out.Data.UserID == "" {
		return fmt.Errorf("rocketchat login returned no token")
	}
	c.userID = out.Data.UserID
	c.token = out.Data.AuthToken
	return nil
}

func (c *RESTClient) Logout(ctx context.Context) error {
	if c.token == "" {
		return nil
	}
	if err := c.do(ctx, http.MethodPost, "logout", nil, nil, nil); err != nil {
		return err
	}
	c.userID = ""
	c.token = ""
	return nil
}

func (c *RESTClient) RoomInfoByID(ctx context.Context, roomID string) (Room, error) {
	return c.roomInfo(ctx, url.Values{"roomId": {roomID}})
}

func (c *RESTClient) RoomInfoByName(ctx context.Context, name string) (Room, error) {
	return c.roomInfo(ctx, url.Values{"roomName": {name}})
}

func (c *RESTClient) roomInfo(ctx context.Context, query url.Values) (Room, error) {
	var out struct {
		apiStatus
		Room Room `json:"room"`
	}
	if err := c.do(ctx, http.MethodGet, "rooms.info", query, nil, &out); err != nil {
		return Room{}, err
	}
	if out.Room.ID == "" {
		return Room{}, &APIError{Endpoint: "rooms.info", Status: http.StatusNotFound, Message: "room not found"}
	}
	return out.Room, nil
}

func (c *RESTClient) UserInfo(ctx context.Context, username string) (User, error) {
	var out struct {
		apiStatus
		User User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "users.info", url.Values{"username": {username}}, nil, &out); err != nil {
		return User{}, err
	}
	if out.User.ID == "" {
		return User{}, &APIError{Endpoint: "users.info", Status: http.StatusNotFound, Message: "user not found"}
	}
	return out.User, nil
}

// History returns up to count messages of room, newest first.
func (c *RESTClient) History(ctx context.Context, room Room, count int) ([]Message, error) {
	endpoint := "channels.history"
	switch room.Type {
	case RoomTypePrivate:
		endpoint = "groups.history"
	case RoomTypeDirect:
		endpoint = "im.history"
	}
	query := url.Values{"roomId": {room.ID}}
	if count > 0 {
		query.Set("count", strconv.Itoa(count))
	}
	var out struct {
		apiStatus
		Messages []Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, query, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// Users pages through users.list.
func (c *RESTClient) Users(ctx context.Context) ([]User, error) {
	const pageSize = 100
	var users []User
	for offset := 0; ; offset += pageSize {
		var out struct {
			apiStatus
			Users []User `json:"users"`
			Total int    `json:"total"`
		}
		query := url.Values{
			"count":  {strconv.Itoa(pageSize)},
			"offset": {strconv.Itoa(offset)},
		}
		if err := c.do(ctx, http.MethodGet, "users.list", query, nil, &out); err != nil {
			return nil, err
		}
		users = append(users, out.Users...)
		if len(out.Users) == 0 || len(users) >= out.Total {
			return users, nil
		}
	}
}

func (c *RESTClient) CreateGroup(ctx context.Context, name string, members []string) (Room, error) {
	var out struct {
		apiStatus
		Group Room `json:"group"`
	}
	body := map[string]any{"name": name, "members": members}
	if err := c.do(ctx, http.MethodPost, "groups.create", nil, body, &out); err != nil {
		return Room{}, err
	}
	return out.Group, nil
}

func (c *RESTClient) AddGroupOwner(ctx context.Context, roomID, userID string) error {
	body := map[string]string{"roomId": roomID, "userId": userID}
	return c.do(ctx, http.MethodPost, "groups.addOwner", nil, body, nil)
}

func (c *RESTClient) do(ctx context.Context, method, endpoint string, query url.Values, body any, out any) error {
	if c == nil || c.http == nil {
		return fmt.Errorf("rocketchat rest client is not initialized")
	}
	if c.baseURL == "" {
		return fmt.Errorf("rocketchat server url is required")
	}
	target := c.baseURL + apiPrefix + "/" + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var bodyRaw []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", endpoint, err)
		}
		bodyRaw = raw
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		var reader io.Reader
		if bodyRaw != nil {
			reader = bytes.NewReader(bodyRaw)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return err
		}
		if bodyRaw != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("X-Auth-Token", c.token)
			req.Header.Set("X-User-Id", c.userID)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("rocketchat %s: %w", endpoint, err)
		}
		respRaw, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("rocketchat %s: %w", endpoint, readErr)
		}

		var status apiStatus
		_ = json.Unmarshal(respRaw, &status)
		if resp.StatusCode >= 200 && resp.StatusCode < 300 && !status.failed() {
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(respRaw, out); err != nil {
				return fmt.Errorf("decode %s response: %w", endpoint, err)
			}
			return nil
		}

		apiErr := &APIError{Endpoint: endpoint, Status: resp.StatusCode, Message: status.text()}
		if apiErr.Status >= 200 && apiErr.Status < 300 {
			apiErr.Status = http.StatusBadRequest
		}
		lastErr = apiErr
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= c.maxAttempts {
			break
		}
		wait := retryAfter(resp.Header, status.text())
		if err := sleepWithContext(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

// retryAfter prefers the delay named in the error text and falls back to the
// Retry-After header.
func retryAfter(headers http.Header, text string) time.Duration {
	if wait, ok := rateLimitDelay(restRateLimitRE, text); ok {
		return wait
	}
	if v := strings.TrimSpace(headers.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Second
}
