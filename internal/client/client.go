package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Client talks to a running huddled daemon over HTTP. All requests carry the
// caller's user id in the identity header.
type Client struct {
	base string
	user string
	http *http.Client
}

// New creates a client for the daemon at addr (host:port) acting as user.
func New(addr, user string) *Client {
	return &Client{
		base: "http://" + addr,
		user: user,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// userHeader matches the header the daemon's API expects.
const userHeader = "X-Huddle-User"

// apiError is a non-2xx daemon response.
type apiError struct {
	Status int
	Msg    string
	Code   string
}

func (e *apiError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("daemon returned %d: %s", e.Status, e.Msg)
	}
	return fmt.Sprintf("daemon returned %d", e.Status)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.Header.Set(userHeader, c.user)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &apiError{Status: resp.StatusCode, Msg: e.Error, Code: e.Code}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Identity mirrors the daemon's /v1/me response.
type Identity struct {
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
	Role   string `json:"role"`
}

// Participant mirrors a /v1/directory entry.
type Participant struct {
	UserID      string `json:"user_id"`
	OrgID       string `json:"org_id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// Conversation mirrors a /v1/conversations entry.
type Conversation struct {
	ID                 string `json:"id"`
	OrgID              string `json:"org_id"`
	Kind               string `json:"kind"`
	Name               string `json:"name"`
	LastMessagePreview string `json:"last_message_preview"`
	LastActivityAt     int64  `json:"last_activity_at_unix_ms"`
	CreatedAt          int64  `json:"created_at_unix_ms"`
	UnreadCount        int    `json:"unread_count"`
}

// Message mirrors a feed entry.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Text           string `json:"text"`
	CreatedAt      int64  `json:"created_at_unix_ms"`
	Mine           bool   `json:"mine"`
	ReadByOther    bool   `json:"read_by_other"`
}

// Event mirrors a /v1/events frame.
type Event struct {
	EventID    string          `json:"event_id"`
	Kind       string          `json:"kind"`
	OccurredAt int64           `json:"occurred_at_unix_ms"`
	Payload    json.RawMessage `json:"payload"`
}

// RosterMember is the shape for roster administration calls.
type RosterMember struct {
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

func (c *Client) Health(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &out)
	return out, err
}

func (c *Client) Status(ctx context.Context) (string, error) {
	var out map[string]string
	if err := c.do(ctx, http.MethodGet, "/v1/status", nil, &out); err != nil {
		return "", err
	}
	return out["state"], nil
}

func (c *Client) Me(ctx context.Context) (*Identity, error) {
	var out Identity
	if err := c.do(ctx, http.MethodGet, "/v1/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Directory fetches the caller's organization directory, optionally filtered
// to one role.
func (c *Client) Directory(ctx context.Context, role string) ([]Participant, error) {
	path := "/v1/directory"
	if role != "" {
		path += "?role=" + url.QueryEscape(role)
	}
	var out struct {
		Participants []Participant `json:"participants"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Participants, nil
}

func (c *Client) CreateOrganization(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/v1/organizations", map[string]string{"name": name}, nil)
}

func (c *Client) UpsertRosterMember(ctx context.Context, m RosterMember) error {
	return c.do(ctx, http.MethodPut, "/v1/roster", m, nil)
}

func (c *Client) ImportRoster(ctx context.Context, members []RosterMember) (int, error) {
	var out map[string]int
	err := c.do(ctx, http.MethodPost, "/v1/roster/import", map[string]any{"members": members}, &out)
	return out["imported"], err
}

func (c *Client) RemoveRosterMember(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/roster/"+url.PathEscape(userID), nil, nil)
}

func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	var out struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

func (c *Client) StartDirect(ctx context.Context, targetID string) (*Conversation, error) {
	var out Conversation
	if err := c.do(ctx, http.MethodPost, "/v1/conversations/direct", map[string]string{"target_id": targetID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateGroup(ctx context.Context, name string, memberIDs []string) (*Conversation, error) {
	var out Conversation
	body := map[string]any{"name": name, "member_ids": memberIDs}
	if err := c.do(ctx, http.MethodPost, "/v1/conversations/group", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RenameGroup(ctx context.Context, conversationID, name string) error {
	return c.do(ctx, http.MethodPatch, "/v1/conversations/"+url.PathEscape(conversationID)+"/name", map[string]string{"name": name}, nil)
}

func (c *Client) RemoveMember(ctx context.Context, conversationID, memberID string) error {
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/members/" + url.PathEscape(memberID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) DeleteGroup(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/conversations/"+url.PathEscape(conversationID), nil, nil)
}

func (c *Client) Send(ctx context.Context, conversationID, text string) (*Message, error) {
	var out Message
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"text": text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Messages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var out struct {
		Messages []Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) MarkRead(ctx context.Context, conversationID string) (int, error) {
	var out map[string]int
	err := c.do(ctx, http.MethodPost, "/v1/conversations/"+url.PathEscape(conversationID)+"/read", nil, &out)
	return out["marked"], err
}

func (c *Client) Unread(ctx context.Context) (map[string]int, error) {
	var out struct {
		Unread map[string]int `json:"unread"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/unread", nil, &out); err != nil {
		return nil, err
	}
	return out.Unread, nil
}

// Watch streams daemon events matching the prefix to fn until the context is
// cancelled or the connection drops.
func (c *Client) Watch(ctx context.Context, prefix string, fn func(Event)) error {
	wsURL := "ws" + strings.TrimPrefix(c.base, "http") + "/v1/events"
	if prefix != "" {
		wsURL += "?prefix=" + url.QueryEscape(prefix)
	}
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{userHeader: []string{c.user}},
	})
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		var evt Event
		if err := wsjson.Read(ctx, conn, &evt); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fn(evt)
	}
}
