package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/XReyRobert/chatgpt-conversations-sync/internal/config"
	"github.com/XReyRobert/chatgpt-conversations-sync/internal/logger"
)

// Client talks to the conversation backend API. It only knows two calls:
// listing a page of conversation headers and fetching one full body.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(cfg config.RemoteConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.AccessToken,
		http: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

// listEnvelope tolerates the page shapes the remote has shipped over time:
// items under "items" or "data", total and has_more present or absent.
type listEnvelope struct {
	Items   []Conversation `json:"items"`
	Data    []Conversation `json:"data"`
	Total   *int           `json:"total"`
	HasMore *bool          `json:"has_more"`
}

// ListPage fetches one page of conversation headers in update-time
// descending order.
func (c *Client) ListPage(ctx context.Context, offset, limit int) (*Page, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("order", "updated")

	body, err := c.get(ctx, "list conversations", c.baseURL+"/conversations?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &Error{Op: "list conversations", Kind: KindNetwork, Err: fmt.Errorf("failed to decode page: %w", err)}
	}

	page := &Page{Items: env.Items}
	if page.Items == nil {
		page.Items = env.Data
	}
	if env.Total != nil {
		page.Total = *env.Total
	}
	if env.HasMore != nil {
		page.HasMore = *env.HasMore
		page.HasMoreSet = true
	}

	logger.Log.Debug("listed page",
		zap.Int("offset", offset),
		zap.Int("limit", limit),
		zap.Int("items", len(page.Items)),
		zap.Int("total", page.Total),
	)
	return page, nil
}

// FetchConversation fetches one full conversation body.
func (c *Client) FetchConversation(ctx context.Context, id string) (*ConversationBody, error) {
	raw, err := c.get(ctx, "fetch conversation", c.baseURL+"/conversation/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Title       string                 `json:"title"`
		CreateTime  UnixTime               `json:"create_time"`
		UpdateTime  UnixTime               `json:"update_time"`
		Mapping     map[string]MappingNode `json:"mapping"`
		CurrentNode string                 `json:"current_node"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &Error{Op: "fetch conversation", Kind: KindNetwork, Err: fmt.Errorf("failed to decode body: %w", err)}
	}

	return &ConversationBody{
		ID:          id,
		Title:       decoded.Title,
		CreateTime:  decoded.CreateTime,
		UpdateTime:  decoded.UpdateTime,
		Mapping:     decoded.Mapping,
		CurrentNode: decoded.CurrentNode,
		Raw:         json.RawMessage(raw),
	}, nil
}

func (c *Client) get(ctx context.Context, op, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{Op: op, Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Kind: classify(err), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: op, Kind: classify(err), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Op: op, Kind: KindStatus, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	return body, nil
}

func classify(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}
