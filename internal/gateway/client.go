// Package gateway binds the enrollment services to an HTTP messaging gateway.
//
// The gateway owns the messaging account; this package only speaks its small
// JSON API:
//
//	GET  /session                      session health, 401 once logged out
//	POST /groups/{id}/participants     {"participants":["<id>"]}
//	GET  /groups/{id}/invite           {"link":"..."}
//	POST /messages                     {"to":"<id>","text":"..."}
package gateway

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

	"github.com/mdmestre/enroller/internal/session"
	"github.com/mdmestre/enroller/pkg/api"
)

// ErrParticipantRejected is returned by Add when the gateway answers but
// refuses the participant, e.g. because of the contact's privacy settings.
var ErrParticipantRejected = errors.New("participant rejected")

// StatusError is a non-2xx gateway response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client talks to one gateway.
type Client struct {
	base      *url.URL
	token     string
	http      *http.Client
	heartbeat time.Duration
}

var (
	_ api.GroupMembership = (*Client)(nil)
	_ api.InviteService   = (*Client)(nil)
	_ api.MessageDelivery = (*Client)(nil)
	_ session.Dialer      = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHeartbeat sets how often a dialed session checks gateway health.
func WithHeartbeat(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.heartbeat = d
		}
	}
}

// New returns a Client for the gateway at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("gateway url is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("gateway url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("gateway url: unsupported scheme %q", u.Scheme)
	}

	c := &Client{
		base:      u,
		http:      &http.Client{Timeout: 30 * time.Second},
		heartbeat: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type addRequest struct {
	Participants []string `json:"participants"`
}

type addResponse struct {
	Participants []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"participants"`
}

// Add asks the gateway to add contactID to groupID. The gateway reports a
// status per participant; anything but "200" is a rejection.
func (c *Client) Add(ctx context.Context, groupID, contactID string) error {
	var resp addResponse
	path := "/groups/" + url.PathEscape(groupID) + "/participants"
	if err := c.do(ctx, http.MethodPost, path, addRequest{Participants: []string{contactID}}, &resp); err != nil {
		return err
	}
	for _, p := range resp.Participants {
		if p.ID != contactID {
			continue
		}
		if p.Status != "200" {
			return fmt.Errorf("%w: %s: status %s", ErrParticipantRejected, contactID, p.Status)
		}
		return nil
	}
	return fmt.Errorf("%w: %s: missing from response", ErrParticipantRejected, contactID)
}

type inviteResponse struct {
	Link string `json:"link"`
}

func (c *Client) InviteLink(ctx context.Context, groupID string) (string, error) {
	var resp inviteResponse
	if err := c.do(ctx, http.MethodGet, "/groups/"+url.PathEscape(groupID)+"/invite", nil, &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Link), nil
}

type messageRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

func (c *Client) Send(ctx context.Context, contactID, payload string) error {
	return c.do(ctx, http.MethodPost, "/messages", messageRequest{To: contactID, Text: payload}, nil)
}

// Dial checks that the gateway session is usable and returns a Session that
// keeps checking in the background.
func (c *Client) Dial(ctx context.Context) (session.Session, error) {
	if err := c.health(ctx); err != nil {
		return nil, err
	}
	s := newGatewaySession(c)
	go s.watch()
	return s, nil
}

func (c *Client) health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/session", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(buf)
	}

	u := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return session.ErrLoggedOut
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
