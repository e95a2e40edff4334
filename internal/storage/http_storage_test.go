package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestUploader(t *testing.T, url string) *HTTPDocumentUploader {
	t.Helper()
	u, err := NewHTTPDocumentUploader(url)
	if err != nil {
		t.Fatalf("NewHTTPDocumentUploader: %v", err)
	}
	u.backoff = func(attempt int) time.Duration { return time.Duration(attempt+1) * 10 * time.Millisecond }
	return u
}

var testDoc = Document{
	SessionID: "s-1",
	Profile:   "prc_id",
	Slot:      "front",
	Filename:  "prc_id_front_1700000000.jpg",
	Data:      []byte{0xFF, 0xD8, 0xFF, 0xD9},
}

func TestHTTPDocumentUploader_RetryLogic(t *testing.T) {
	tests := []struct {
		name          string
		responses     []int // Status codes to return in sequence
		expectRetries int   // Expected number of requests
		expectError   bool
		errorContains string
	}{
		{
			name:          "Success on first attempt",
			responses:     []int{201},
			expectRetries: 1,
		},
		{
			name:          "Success on second attempt after 5xx",
			responses:     []int{500, 200},
			expectRetries: 2,
		},
		{
			name:          "4xx client error - no retry",
			responses:     []int{413},
			expectRetries: 1,
			expectError:   true,
			errorContains: "client error: status code 413",
		},
		{
			name:          "4xx after 5xx - should retry until 4xx then stop",
			responses:     []int{502, 400},
			expectRetries: 2,
			expectError:   true,
			errorContains: "client error: status code 400",
		},
		{
			name:          "All 5xx errors - retry all attempts",
			responses:     []int{500, 502, 503},
			expectRetries: 3,
			expectError:   true,
			errorContains: "server error: status code 503",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requestCount := 0

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := r.ParseMultipartForm(1 << 20); err != nil {
					t.Errorf("Expected multipart body: %v", err)
				}
				if requestCount >= len(tt.responses) {
					w.WriteHeader(500)
					return
				}
				statusCode := tt.responses[requestCount]
				requestCount++
				if statusCode < 300 {
					w.Header().Set("Location", "https://docs.example.com/"+r.FormValue("slot"))
				}
				w.WriteHeader(statusCode)
			}))
			defer server.Close()

			location, err := newTestUploader(t, server.URL).Store(context.Background(), testDoc)

			if requestCount != tt.expectRetries {
				t.Errorf("Expected %d requests, got %d", tt.expectRetries, requestCount)
			}
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error, but got none")
				} else if !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("Expected error to contain '%s', got: %s", tt.errorContains, err.Error())
				}
				return
			}
			if err != nil {
				t.Errorf("Expected no error, got: %s", err.Error())
			}
			if location != "https://docs.example.com/front" {
				t.Errorf("Unexpected location %q", location)
			}
		})
	}
}

func TestHTTPDocumentUploader_MultipartFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for field, want := range map[string]string{"session_id": "s-1", "profile": "prc_id", "slot": "front"} {
			if got := r.FormValue(field); got != want {
				t.Errorf("Field %s = %q, want %q", field, got, want)
			}
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != testDoc.Filename || len(data) != len(testDoc.Data) {
			t.Errorf("Unexpected file part %q (%d bytes)", hdr.Filename, len(data))
		}
		if ct := hdr.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("Unexpected part content type %q", ct)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	location, err := newTestUploader(t, server.URL).Store(context.Background(), testDoc)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if location != server.URL {
		t.Errorf("Expected endpoint as location without a Location header, got %q", location)
	}
}

func TestHTTPDocumentUploader_NetworkError_Retry(t *testing.T) {
	requestCount := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		if requestCount < 3 {
			// Simulate network error by closing connection
			if hj, ok := w.(http.Hijacker); ok {
				conn, _, _ := hj.Hijack()
				conn.Close()
			}
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	start := time.Now()
	_, err := newTestUploader(t, server.URL).Store(context.Background(), testDoc)
	duration := time.Since(start)

	if err != nil {
		t.Errorf("Expected success after retries, got error: %s", err.Error())
	}
	if requestCount != 3 {
		t.Errorf("Expected 3 requests, got %d", requestCount)
	}
	// 10ms + 20ms of backoff
	if duration < 30*time.Millisecond {
		t.Errorf("Expected backoff between attempts, took %v", duration)
	}
}

func TestHTTPDocumentUploader_CancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	u := newTestUploader(t, server.URL)
	u.backoff = func(int) time.Duration { return time.Hour }

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := u.Store(ctx, testDoc)
	if err == nil || !strings.Contains(err.Error(), "cancelled") {
		t.Errorf("Expected cancellation error, got %v", err)
	}
}

func TestNewHTTPDocumentUploader_RejectsBadEndpoint(t *testing.T) {
	for _, endpoint := range []string{"", "ftp://example.com/upload", "http://"} {
		if _, err := NewHTTPDocumentUploader(endpoint); err == nil {
			t.Errorf("Expected error for %q", endpoint)
		}
	}
}
