package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/aloksahay/fairbnb-sub000/gateway"
	"github.com/aloksahay/fairbnb-sub000/merkle"
)

// A Client calls the storaged API over HTTP.
type Client struct {
	baseURL  string
	password string
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL, password string) *Client {
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		password: password,
	}
}

func (c *Client) do(req *http.Request, resp interface{}) error {
	req.SetBasicAuth("", c.password)
	r, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer r.Body.Close()

	if r.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(r.Body)
		return errors.New(strings.TrimSpace(string(msg)))
	}
	if resp == nil {
		_, err = io.Copy(io.Discard, r.Body)
		return err
	}
	return json.NewDecoder(r.Body).Decode(resp)
}

// Upload deposits payload on the storage network under the given file name
// and MIME type and returns the upload record.
func (c *Client) Upload(ctx context.Context, payload []byte, name, mimeType string) (gateway.UploadRecord, error) {
	values := url.Values{}
	values.Set("name", name)
	values.Set("type", mimeType)

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/api/files?%s", c.baseURL, values.Encode()), bytes.NewReader(payload))
	if err != nil {
		return gateway.UploadRecord{}, err
	}
	req.Header.Set("Content-Type", mimeType)

	var record gateway.UploadRecord
	if err := c.do(req, &record); err != nil {
		return gateway.UploadRecord{}, err
	}
	return record, nil
}

// Download retrieves the payload addressed by root. The file name and MIME
// type are restored from the response headers.
func (c *Client) Download(ctx context.Context, root merkle.Root) (gateway.DownloadResult, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/api/files/%s", c.baseURL, root), nil)
	if err != nil {
		return gateway.DownloadResult{}, err
	}
	req.SetBasicAuth("", c.password)

	r, err := http.DefaultClient.Do(req)
	if err != nil {
		return gateway.DownloadResult{}, err
	}
	defer r.Body.Close()

	if r.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(r.Body)
		return gateway.DownloadResult{}, errors.New(strings.TrimSpace(string(msg)))
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return gateway.DownloadResult{}, fmt.Errorf("failed to read payload: %w", err)
	}

	result := gateway.DownloadResult{
		Payload:  payload,
		MimeType: r.Header.Get("Content-Type"),
		Size:     uint64(len(payload)),
	}
	if _, params, err := mime.ParseMediaType(r.Header.Get("Content-Disposition")); err == nil {
		result.FileName = params["filename"]
	}
	return result, nil
}

// Hash returns the content address of payload without depositing it.
func (c *Client) Hash(ctx context.Context, payload []byte) (HashResp, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/files/hash", bytes.NewReader(payload))
	if err != nil {
		return HashResp{}, err
	}

	var resp HashResp
	if err := c.do(req, &resp); err != nil {
		return HashResp{}, err
	}
	return resp, nil
}

// Uploads returns the recorded uploads, most recent first.
func (c *Client) Uploads(ctx context.Context) ([]gateway.UploadRecord, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/files", nil)
	if err != nil {
		return nil, err
	}

	var records []gateway.UploadRecord
	if err := c.do(req, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Status reports storage network connectivity.
func (c *Client) Status(ctx context.Context) (StatusResp, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/status", nil)
	if err != nil {
		return StatusResp{}, err
	}

	var resp StatusResp
	if err := c.do(req, &resp); err != nil {
		return StatusResp{}, err
	}
	return resp, nil
}

// Balance reports the settlement account funding the gateway's deposits.
func (c *Client) Balance(ctx context.Context) (BalanceResp, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/balance", nil)
	if err != nil {
		return BalanceResp{}, err
	}

	var resp BalanceResp
	if err := c.do(req, &resp); err != nil {
		return BalanceResp{}, err
	}
	return resp, nil
}
