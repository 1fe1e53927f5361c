// Package api is the HTTP client behind ehrctl.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to one ehrchain node.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// NewClient returns a client for baseURL. insecure skips TLS verification for local nodes.
func NewClient(baseURL, token string, insecure bool) *Client {
	tr := &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: insecure}}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Transport: tr, Timeout: 10 * time.Second},
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// do sends body as JSON (when non-nil) and decodes the response into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Session is returned by Login.
type Session struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Actor     json.RawMessage `json:"actor"`
}

// Login exchanges a password for a session token.
func (c *Client) Login(ctx context.Context, id, password string) (Session, error) {
	var s Session
	err := c.do(ctx, http.MethodPost, "/api/v1/login", map[string]string{"id": id, "password": password}, &s)
	return s, err
}

// VerifyResult mirrors the node's verification result.
type VerifyResult struct {
	Valid             bool    `json:"valid"`
	FirstInvalidIndex *uint64 `json:"firstInvalidIndex"`
	Reason            string  `json:"reason"`
	Checked           int     `json:"checked"`
}

// Verify asks the node to verify blocks in [from, to). to == 0 means the tip.
func (c *Client) Verify(ctx context.Context, from, to uint64) (VerifyResult, error) {
	var r VerifyResult
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/ledger/verify?from=%d&to=%d", from, to), nil, &r)
	return r, err
}

// BlockHeader is a block without its payload.
type BlockHeader struct {
	Index       uint64    `json:"index"`
	Timestamp   time.Time `json:"timestamp"`
	PrevHash    string    `json:"prevHash"`
	Kind        string    `json:"kind"`
	PayloadHash string    `json:"payloadHash"`
	BlockHash   string    `json:"blockHash"`
	Signer      string    `json:"signer,omitempty"`
}

// Blocks lists headers in [from, to).
func (c *Client) Blocks(ctx context.Context, from, to uint64) ([]BlockHeader, error) {
	var out []BlockHeader
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/ledger/blocks?from=%d&to=%d", from, to), nil, &out)
	return out, err
}

// Lineage returns a record's amendment chain, oldest first, as raw records.
func (c *Client) Lineage(ctx context.Context, recordID string) ([]map[string]interface{}, error) {
	var out []map[string]interface{}
	err := c.do(ctx, http.MethodGet, "/api/v1/records/"+recordID+"/lineage", nil, &out)
	return out, err
}

// VerifyHash reports whether recordID still matches the fingerprint hash.
func (c *Client) VerifyHash(ctx context.Context, recordID, hash string) (bool, error) {
	var out struct {
		Match bool `json:"match"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/records/"+recordID+"/verify-hash", map[string]string{"hash": hash}, &out)
	return out.Match, err
}

// Checkpoint mirrors the node's Merkle checkpoint.
type Checkpoint struct {
	From     uint64 `json:"from"`
	To       uint64 `json:"to"`
	Root     string `json:"root"`
	LastHash string `json:"lastHash"`
}

// Checkpoint fetches a Merkle commitment to blocks in [from, to).
func (c *Client) Checkpoint(ctx context.Context, from, to uint64) (Checkpoint, error) {
	var cp Checkpoint
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/ledger/checkpoint?from=%d&to=%d", from, to), nil, &cp)
	return cp, err
}
