// Package transport speaks the server's ingestion API: multipart document
// uploads with byte-level progress, processing kickoff, and processing
// status polls.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrorKind classifies request failures. Per-item failures stay local to
// their item; none of these abort a batch.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNetwork    ErrorKind = "network"
	KindServer     ErrorKind = "server"
	KindParse      ErrorKind = "parse"
)

// RequestError carries the human-readable message shown on the failed item.
// Server-provided messages are preferred over generic ones.
type RequestError struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *RequestError) Error() string { return e.Message }
func (e *RequestError) Unwrap() error { return e.cause }

// ErrorKindOf extracts the kind from an error, or "" for foreign errors.
func ErrorKindOf(err error) ErrorKind {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Kind
	}
	return ""
}

// Client issues requests against one server base URL.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// NewClient constructs a Client. A zero timeout leaves the underlying
// http.Client without a deadline; uploads are bounded by the caller's ctx.
func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// UploadRequest is one document heading to POST /upload_document.
type UploadRequest struct {
	FileName  string
	DocName   string
	Abstract  string
	EventID   *int
	DateTaken string // "2006-01-02 15:04:05", empty when no date is set
	Data      []byte
}

type uploadResponse struct {
	Success   bool   `json:"success"`
	Docnumber *int   `json:"docnumber"`
	Error     string `json:"error"`
}

// UploadDocument posts one document and reports fractional progress as
// percentages through onProgress. It returns the server-assigned document
// number on success.
func (c *Client) UploadDocument(ctx context.Context, req UploadRequest, onProgress func(percent int)) (int, error) {
	if len(req.Data) == 0 {
		return 0, &RequestError{Kind: KindValidation, Message: "no file content"}
	}
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", req.FileName)
	if err != nil {
		return 0, &RequestError{Kind: KindValidation, Message: "could not build upload form", cause: err}
	}
	if _, err := part.Write(req.Data); err != nil {
		return 0, &RequestError{Kind: KindValidation, Message: "could not build upload form", cause: err}
	}
	fields := map[string]string{
		"docname":  req.DocName,
		"abstract": req.Abstract,
	}
	if req.EventID != nil {
		fields["event_id"] = strconv.Itoa(*req.EventID)
	}
	if req.DateTaken != "" {
		fields["date_taken"] = req.DateTaken
	}
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			return 0, &RequestError{Kind: KindValidation, Message: "could not build upload form", cause: err}
		}
	}
	if err := form.Close(); err != nil {
		return 0, &RequestError{Kind: KindValidation, Message: "could not build upload form", cause: err}
	}

	body := &progressReader{
		r:          bytes.NewReader(buf.Bytes()),
		total:      int64(buf.Len()),
		onProgress: onProgress,
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload_document", body)
	if err != nil {
		return 0, &RequestError{Kind: KindValidation, Message: "could not build upload request", cause: err}
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	httpReq.ContentLength = int64(buf.Len())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, &RequestError{Kind: KindNetwork, Message: "network error during upload", cause: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, &RequestError{Kind: KindNetwork, Message: "network error during upload", cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("server error: %d", resp.StatusCode)
		var payload uploadResponse
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return 0, &RequestError{Kind: KindServer, Message: msg}
	}
	var payload uploadResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, &RequestError{Kind: KindParse, Message: "failed to parse server response", cause: err}
	}
	if !payload.Success {
		msg := payload.Error
		if msg == "" {
			msg = "upload failed"
		}
		return 0, &RequestError{Kind: KindServer, Message: msg}
	}
	if payload.Docnumber == nil {
		return 0, &RequestError{Kind: KindParse, Message: "failed to parse server response"}
	}
	return *payload.Docnumber, nil
}

// StartProcessing asks the backend to begin analysing the given documents.
// The endpoint is fire-and-forget: only a transport-level failure is
// reported back, a non-2xx answer is logged and treated as initiated.
func (c *Client) StartProcessing(ctx context.Context, ids []int) error {
	resp, err := c.postJSON(ctx, "/process_uploaded_documents", ids)
	if err != nil {
		return &RequestError{Kind: KindNetwork, Message: "could not start processing", cause: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("processing initiation returned non-2xx", zap.Int("status", resp.StatusCode))
	}
	return nil
}

type statusResponse struct {
	Processing []int `json:"processing"`
}

// ProcessingStatus returns the subset of ids the backend is still working on.
func (c *Client) ProcessingStatus(ctx context.Context, ids []int) ([]int, error) {
	resp, err := c.postJSON(ctx, "/processing_status", ids)
	if err != nil {
		return nil, &RequestError{Kind: KindNetwork, Message: "status check failed", cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, &RequestError{Kind: KindServer, Message: fmt.Sprintf("status check failed: %d", resp.StatusCode)}
	}
	var payload statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &RequestError{Kind: KindParse, Message: "failed to parse status response", cause: err}
	}
	return payload.Processing, nil
}

func (c *Client) postJSON(ctx context.Context, path string, ids []int) (*http.Response, error) {
	if ids == nil {
		ids = []int{}
	}
	body, err := json.Marshal(map[string][]int{"docnumbers": ids})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

// progressReader counts bytes handed to the HTTP transport and maps them to
// integer percentages. sent only grows, so reported progress is
// monotonically non-decreasing.
type progressReader struct {
	r          io.Reader
	total      int64
	sent       int64
	last       int
	onProgress func(percent int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.onProgress != nil && p.total > 0 {
			pct := int(math.Round(float64(p.sent) / float64(p.total) * 100))
			if pct > 100 {
				pct = 100
			}
			if pct != p.last {
				p.last = pct
				p.onProgress(pct)
			}
		}
	}
	return n, err
}
