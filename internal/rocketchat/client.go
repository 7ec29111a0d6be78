package rocketchat

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 512

type ClientOptions struct {
	// Server is the host (and optional port) of the Rocket.Chat instance,
	// or a full http(s) URL.
	Server   string
	TLS      bool
	Username string
	Password string

	RequestTimeout time.Duration
	CacheSize      int
	Logger         *slog.Logger
	HTTPClient     *http.Client
	Dialer         *websocket.Dialer
}

// Client combines the realtime (DDP) and REST APIs behind one handle and
// caches room and user lookups.
type Client struct {
	ddp      *DDPClient
	rest     *RESTClient
	logger   *slog.Logger
	username string
	password string

	mu     sync.Mutex
	userID string

	roomsByID   *lru.Cache[string, Room]
	roomsByName *lru.Cache[string, Room]
	users       *lru.Cache[string, User]
}

func NewClient(opts ClientOptions) (*Client, error) {
	httpBase, wsURL, err := serverURLs(opts.Server, opts.TLS)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	roomsByID, err := lru.New[string, Room](size)
	if err != nil {
		return nil, fmt.Errorf("room cache: %w", err)
	}
	roomsByName, err := lru.New[string, Room](size)
	if err != nil {
		return nil, fmt.Errorf("room cache: %w", err)
	}
	users, err := lru.New[string, User](size)
	if err != nil {
		return nil, fmt.Errorf("user cache: %w", err)
	}
	dialer := opts.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		if opts.TLS {
			d.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		dialer = &d
	}
	return &Client{
		ddp: NewDDPClient(DDPOptions{
			URL:    wsURL,
			Logger: logger,
			Dialer: dialer,
		}),
		rest:        NewRESTClient(httpClient, httpBase),
		logger:      logger,
		username:    strings.TrimSpace(opts.Username),
		password:    opts.Password,
		roomsByID:   roomsByID,
		roomsByName: roomsByName,
		users:       users,
	}, nil
}

// serverURLs derives the REST base URL and the websocket URL from the
// configured server.
func serverURLs(server string, useTLS bool) (string, string, error) {
	server = strings.TrimSpace(server)
	if server == "" {
		return "", "", fmt.Errorf("rocketchat server is required")
	}
	if !strings.Contains(server, "://") {
		scheme := "http"
		if useTLS {
			scheme = "https"
		}
		server = scheme + "://" + server
	}
	u, err := url.Parse(server)
	if err != nil {
		return "", "", fmt.Errorf("invalid rocketchat server %q: %w", server, err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("invalid rocketchat server %q", server)
	}
	base := strings.TrimRight(u.Scheme+"://"+u.Host+u.Path, "/")
	ws := *u
	switch u.Scheme {
	case "https":
		ws.Scheme = "wss"
	case "http":
		ws.Scheme = "ws"
	default:
		return "", "", fmt.Errorf("unsupported rocketchat scheme %q", u.Scheme)
	}
	ws.Path = strings.TrimRight(u.Path, "/") + "/websocket"
	return base, ws.String(), nil
}

func (c *Client) Username() string { return c.username }

func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Login authenticates the REST client only.
func (c *Client) Login(ctx context.Context) error {
	if err := c.rest.Login(ctx, c.username, c.password); err != nil {
		return fmt.Errorf("rest login: %w", err)
	}
	c.mu.Lock()
	c.userID = c.rest.userID
	c.mu.Unlock()
	return nil
}

// Connect logs in over REST, opens the realtime connection and logs in there
// as well.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.Login(ctx); err != nil {
		return err
	}
	if err := c.ddp.Connect(ctx); err != nil {
		return err
	}
	res, err := c.ddp.Login(ctx, c.username, c.password)
	if err != nil {
		c.ddp.Close()
		return fmt.Errorf("ddp login: %w", err)
	}
	c.mu.Lock()
	c.userID = res.UserID
	c.mu.Unlock()
	c.logger.Info("rocketchat_logged_in", "username", c.username, "user_id", res.UserID)
	return nil
}

// Close logs out of both APIs and drops the realtime connection.
func (c *Client) Close(ctx context.Context) error {
	var errs []error
	if err := c.ddp.Logout(ctx); err != nil {
		errs = append(errs, err)
	}
	c.ddp.Close()
	if err := c.rest.Logout(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Client) Done() <-chan struct{} { return c.ddp.Done() }

func (c *Client) Err() error { return c.ddp.Err() }

func (c *Client) SubscribeMyMessages(ctx context.Context, handler EventHandler) error {
	return c.ddp.Subscribe(ctx, StreamRoomMessages, MyMessagesEvent, handler)
}

func (c *Client) SendMessage(ctx context.Context, roomID, text string) (Message, error) {
	return c.ddp.SendMessage(ctx, roomID, text)
}

func (c *Client) UpdateMessage(ctx context.Context, update MessageUpdate) error {
	return c.ddp.UpdateMessage(ctx, update)
}

func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.ddp.DeleteMessage(ctx, messageID)
}

func (c *Client) SetReaction(ctx context.Context, emoji, messageID string, on bool) error {
	return c.ddp.SetReaction(ctx, emoji, messageID, on)
}

func (c *Client) CreateDirectMessage(ctx context.Context, username string) (string, error) {
	return c.ddp.CreateDirectMessage(ctx, username)
}

// SendDirectMessage opens (or reuses) the direct room with username and
// posts text there.
func (c *Client) SendDirectMessage(ctx context.Context, username, text string) (Message, error) {
	roomID, err := c.CreateDirectMessage(ctx, username)
	if err != nil {
		return Message{}, err
	}
	return c.SendMessage(ctx, roomID, text)
}

func (c *Client) RoomByID(ctx context.Context, roomID string) (Room, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return Room{}, fmt.Errorf("room id is required")
	}
	if room, ok := c.roomsByID.Get(roomID); ok {
		return room, nil
	}
	room, err := c.rest.RoomInfoByID(ctx, roomID)
	if err != nil {
		return Room{}, err
	}
	c.rememberRoom(room)
	return room, nil
}

func (c *Client) RoomByName(ctx context.Context, name string) (Room, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "#")
	if name == "" {
		return Room{}, fmt.Errorf("room name is required")
	}
	if room, ok := c.roomsByName.Get(name); ok {
		return room, nil
	}
	room, err := c.rest.RoomInfoByName(ctx, name)
	if err != nil {
		return Room{}, err
	}
	c.rememberRoom(room)
	return room, nil
}

func (c *Client) rememberRoom(room Room) {
	if room.ID != "" {
		c.roomsByID.Add(room.ID, room)
	}
	if room.Name != "" {
		c.roomsByName.Add(room.Name, room)
	}
}

func (c *Client) UserInfo(ctx context.Context, username string) (User, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return User{}, fmt.Errorf("username is required")
	}
	if user, ok := c.users.Get(username); ok {
		return user, nil
	}
	user, err := c.rest.UserInfo(ctx, username)
	if err != nil {
		return User{}, err
	}
	c.users.Add(username, user)
	return user, nil
}

// DisplayName resolves username to the user's full name. Lookup failures fall
// back to the username and are not cached.
func (c *Client) DisplayName(ctx context.Context, username string) string {
	user, err := c.UserInfo(ctx, username)
	if err != nil {
		c.logger.Debug("rocketchat_user_lookup_failed", "username", username, "error", err.Error())
		return username
	}
	return user.Ref().DisplayName()
}

// LoadHistory returns up to count recent messages of roomID, newest first.
// It uses the realtime connection when one is open.
func (c *Client) LoadHistory(ctx context.Context, roomID string, count int) ([]Message, error) {
	select {
	case <-c.ddp.Done():
	default:
		return c.ddp.LoadHistory(ctx, roomID, count)
	}
	room, err := c.RoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return c.rest.History(ctx, room, count)
}

func (c *Client) Users(ctx context.Context) ([]User, error) {
	users, err := c.rest.Users(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Username != "" {
			c.users.Add(u.Username, u)
		}
	}
	return users, nil
}

func (c *Client) CreateGroup(ctx context.Context, name string, members []string) (Room, error) {
	room, err := c.rest.CreateGroup(ctx, name, members)
	if err != nil {
		return Room{}, err
	}
	c.rememberRoom(room)
	return room, nil
}

func (c *Client) AddGroupOwner(ctx context.Context, roomID, userID string) error {
	return c.rest.AddGroupOwner(ctx, roomID, userID)
}
