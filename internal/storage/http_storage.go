package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/anime-shed/id-capture-go/pkg/validation"
)

const maxUploadAttempts = 3

// HTTPDocumentUploader posts each document as multipart/form-data to an
// upload endpoint.
type HTTPDocumentUploader struct {
	endpoint string
	client   *http.Client
	backoff  func(attempt int) time.Duration
}

// NewHTTPDocumentUploader creates an uploader for endpoint.
func NewHTTPDocumentUploader(endpoint string) (*HTTPDocumentUploader, error) {
	if err := validation.NewEndpointValidator().Validate(endpoint); err != nil {
		return nil, err
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
	}

	return &HTTPDocumentUploader{
		endpoint: endpoint,
		client: &http.Client{
			Transport: transport,
			Timeout:   60 * time.Second,

			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt+1) * time.Second
		},
	}, nil
}

func (h *HTTPDocumentUploader) Name() string { return "http" }

func (h *HTTPDocumentUploader) Close() error {
	h.client.CloseIdleConnections()
	return nil
}

// Store uploads doc. 4xx responses fail immediately; network errors and
// 5xx responses are retried up to three attempts with 1s, 2s backoff. The
// Location response header, when present, is returned as the location.
func (h *HTTPDocumentUploader) Store(ctx context.Context, doc Document) (string, error) {
	body, formType, err := encodeMultipart(doc)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt < maxUploadAttempts; attempt++ {
		location, retry, err := h.post(ctx, body, formType)
		if err == nil {
			return location, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}

		if attempt < maxUploadAttempts-1 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("upload cancelled: %w", ctx.Err())
			case <-time.After(h.backoff(attempt)):
			}
		}
	}
	return "", fmt.Errorf("failed to upload document after %d attempts: %w", maxUploadAttempts, lastErr)
}

func (h *HTTPDocumentUploader) post(ctx context.Context, body []byte, formType string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("Content-Type", formType)
	req.Header.Set("User-Agent", "ID-Capture/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", true, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if loc := resp.Header.Get("Location"); loc != "" {
			return loc, false, nil
		}
		return h.endpoint, false, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", false, fmt.Errorf("client error: status code %d", resp.StatusCode)
	default:
		return "", true, fmt.Errorf("server error: status code %d", resp.StatusCode)
	}
}

func encodeMultipart(doc Document) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"session_id", doc.SessionID},
		{"client_ref", doc.ClientRef},
		{"profile", doc.Profile},
		{"slot", doc.Slot},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("encode field %s: %w", f[0], err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, doc.Filename))
	header.Set("Content-Type", contentType(doc))
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(doc.Data); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("finish multipart body: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}
