// Package encoder talks to the external face detection and encoding service.
package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/facematch"
)

const defaultEncoderURL = "http://localhost:8000"

// Client sends capture images to the encoder service.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new encoder client
func NewClient(cfg *config.EncoderConfig) *Client {
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = defaultEncoderURL
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// encodeResponse is the body returned by /faces/encode. Encodings is kept raw:
// the service may return a list of encodings or one bare encoding, each as
// numbers or as JSON text.
type encodeResponse struct {
	FacesDetected int             `json:"faces_detected"`
	Encodings     json.RawMessage `json:"encodings"`
}

// Detection is the decoded result of one encode call.
type Detection struct {
	FacesDetected int
	Probes        facematch.ProbeSet
}

// Capture converts the detection into reconciliation input.
func (d *Detection) Capture() attendance.Capture {
	return attendance.Capture{FacesDetected: d.FacesDetected, Probes: d.Probes}
}

// postMultipartImage posts the image as the "file" part of a multipart form,
// with a Content-Type detected from its magic bytes.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="capture"`)
	h.Set("Content-Type", DetectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}

// Encode detects faces in the image and returns their encodings as probes.
// Encodings that do not normalize are dropped and counted in Probes.Rejected.
func (c *Client) Encode(ctx context.Context, imageData []byte) (*Detection, error) {
	body, err := c.postMultipartImage(ctx, "/faces/encode", imageData)
	if err != nil {
		return nil, err
	}

	var resp encodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	set := facematch.NormalizeProbes(resp.Encodings)
	return &Detection{
		FacesDetected: resp.FacesDetected,
		Probes:        set,
	}, nil
}

// Detect implements attendance.Detector.
func (c *Client) Detect(ctx context.Context, imageData []byte) (attendance.Capture, error) {
	d, err := c.Encode(ctx, imageData)
	if err != nil {
		return attendance.Capture{}, err
	}
	return d.Capture(), nil
}

// Health checks that the encoder service answers.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("encoder unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

// DetectMIMEType detects the MIME type from image data
func DetectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
