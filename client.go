package notesync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"time"
)

// Note is a note as returned by the http api.
type Note struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Format    string    `json:"format"`
	Tags      []string  `json:"tags"`
	IsPublic  bool      `json:"isPublic"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Warnings  []string  `json:"warnings,omitempty"`
}

type NotePage struct {
	Notes      []*Note `json:"notes"`
	NextCursor string  `json:"nextCursor"`
	HasMore    bool    `json:"hasMore"`
}

type Attachment struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Mime      string    `json:"mime"`
	CreatedAt time.Time `json:"createdAt"`
}

type SignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// APIError is a non-2xx response.
type APIError struct {
	Status int
	Body   struct {
		Error  string `json:"error"`
		Code   string `json:"code"`
		Reason string `json:"reason"`
	}
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%d %s", e.Status, e.Body.Error)
	if e.Body.Code != "" {
		msg += " (" + e.Body.Code + ")"
	}
	return msg
}

// Client calls the notesync http api as one user.
type Client struct {
	baseURL string
	userID  string
	http    *http.Client
}

func NewClient(baseURL, userID string) *Client {
	return &Client{
		baseURL: baseURL,
		userID:  userID,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-User-Id", c.userID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		apiErr := &APIError{Status: res.StatusCode}
		_ = json.NewDecoder(res.Body).Decode(&apiErr.Body)
		return apiErr
	}
	if out == nil {
		return nil
	}

	return json.NewDecoder(res.Body).Decode(out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	return c.do(ctx, method, path, body, "application/json", out)
}

func (c *Client) CreateNote(ctx context.Context, title, content string, tags []string) (*Note, error) {
	var note Note
	err := c.doJSON(ctx, http.MethodPost, "/v1/notes", map[string]any{
		"title":   title,
		"content": content,
		"tags":    tags,
	}, &note)
	return &note, err
}

func (c *Client) GetNote(ctx context.Context, id string) (*Note, error) {
	var note Note
	err := c.doJSON(ctx, http.MethodGet, "/v1/notes/"+url.PathEscape(id), nil, &note)
	return &note, err
}

func (c *Client) ListNotes(ctx context.Context, cursor string, limit int) (*NotePage, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var page NotePage
	err := c.doJSON(ctx, http.MethodGet, "/v1/notes?"+q.Encode(), nil, &page)
	return &page, err
}

// UpdateNote sends only the given fields.
func (c *Client) UpdateNote(ctx context.Context, id string, fields map[string]any) (*Note, error) {
	var note Note
	err := c.doJSON(ctx, http.MethodPatch, "/v1/notes/"+url.PathEscape(id), fields, &note)
	return &note, err
}

func (c *Client) SetTags(ctx context.Context, id string, tags []string) ([]string, error) {
	var res struct {
		Tags []string `json:"tags"`
	}
	err := c.doJSON(ctx, http.MethodPut, "/v1/notes/"+url.PathEscape(id)+"/tags", map[string]any{"tags": tags}, &res)
	return res.Tags, err
}

func (c *Client) DeleteNote(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/notes/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ListAttachments(ctx context.Context, noteID string) ([]*Attachment, error) {
	var res struct {
		Attachments []*Attachment `json:"attachments"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/v1/notes/"+url.PathEscape(noteID)+"/attachments", nil, &res)
	return res.Attachments, err
}

// UploadAttachment sends data as the multipart file of a new attachment.
func (c *Client) UploadAttachment(ctx context.Context, noteID, name, mimeType string, data []byte) (*Attachment, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(name))}
	if mimeType != "" {
		header["Content-Type"] = []string{mimeType}
	}
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var res struct {
		Attachment *Attachment `json:"attachment"`
	}
	err = c.do(ctx, http.MethodPost, "/v1/notes/"+url.PathEscape(noteID)+"/attachments", &buf, w.FormDataContentType(), &res)
	return res.Attachment, err
}

func (c *Client) SignedURL(ctx context.Context, noteID, fileID string, ttl time.Duration) (*SignedURL, error) {
	var signed SignedURL
	path := "/v1/notes/" + url.PathEscape(noteID) + "/attachments/" + url.PathEscape(fileID) + "/url"
	err := c.doJSON(ctx, http.MethodPost, path, map[string]any{"ttlSeconds": int(ttl.Seconds())}, &signed)
	return &signed, err
}
