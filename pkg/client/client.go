package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/modelhost/pkg/notify"
	"github.com/cuemby/modelhost/pkg/types"
	"github.com/gorilla/websocket"
)

const (
	apiRoot         = "/api/v1"
	registerTimeout = 10 * time.Second
)

// APIError is a non-2xx response from the server
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server responded %d: %s", e.StatusCode, e.Message)
}

// UploadResult is the server's acknowledgement of an upload
type UploadResult struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// Client talks to a modelhost server over HTTP and WebSocket
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL (e.g. http://localhost:8080)
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Minute},
	}
}

// WithHTTPClient replaces the underlying HTTP client
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// Upload sends the archive at path and returns once the server has started the deployment
func (c *Client) Upload(ctx context.Context, path, name, userID string) (*UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(mw, f, filepath.Base(path), name, userID))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiRoot+"/modelhost", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var result UploadResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func writeUploadForm(mw *multipart.Writer, src io.Reader, filename, name, userID string) error {
	if err := mw.WriteField("name", name); err != nil {
		return err
	}
	if err := mw.WriteField("userId", userID); err != nil {
		return err
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, src); err != nil {
		return err
	}
	return mw.Close()
}

// Get fetches one deployment record
func (c *Client) Get(ctx context.Context, id string) (*types.Deployment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiRoot+"/deployments/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var d types.Deployment
	if err := c.do(req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// List fetches deployment records, filtered by owner when userID is set
func (c *Client) List(ctx context.Context, userID string) ([]*types.Deployment, error) {
	u := c.baseURL + apiRoot + "/deployments"
	if userID != "" {
		u += "?userId=" + url.QueryEscape(userID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var list []*types.Deployment
	if err := c.do(req, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Delete removes a deployment and starts the teardown of its resources
func (c *Client) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+apiRoot+"/deployments/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: body.Message}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %w", types.ErrNotFound, apiErr)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Subscription is a registered notification session
type Subscription struct {
	conn *websocket.Conn
}

// Subscribe opens the notification socket, registers as userID and waits
// for the server's acknowledgement. Status changes published after
// Subscribe returns are delivered through Next.
func (c *Client) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	wsURL, err := c.websocketURL()
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	if err := conn.WriteJSON(notify.RegisterMessage{Event: notify.EventRegister, UserID: userID}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("register: %w", err)
	}

	deadline := time.Now().Add(registerTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	var ack notify.Message
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("register: %w", err)
	}
	if ack.Event != notify.EventRegistered {
		conn.Close()
		return nil, fmt.Errorf("register: unexpected %q message", ack.Event)
	}
	_ = conn.SetReadDeadline(time.Time{})

	return &Subscription{conn: conn}, nil
}

// Next blocks until the next status message arrives
func (s *Subscription) Next() (notify.Message, error) {
	for {
		var msg notify.Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			return notify.Message{}, err
		}
		if msg.Event == notify.EventDeploymentStatus {
			return msg, nil
		}
	}
}

// Close ends the session
func (s *Subscription) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}

// Watch subscribes as userID and calls fn for every status message until
// ctx is done or the connection drops.
func (c *Client) Watch(ctx context.Context, userID string, fn func(notify.Message)) error {
	sub, err := c.Subscribe(ctx, userID)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = sub.Close() })
	defer stop()
	defer sub.conn.Close()

	for {
		msg, err := sub.Next()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		fn(msg)
	}
}

func (c *Client) websocketURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", errors.New("base url must use http or https")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}
