// Package embedding talks to the external face-embedding server.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"golang.org/x/time/rate"
)

const defaultEmbeddingURL = "http://localhost:8000"

var (
	// ErrNoFaceDetected is returned when the server finds no usable face in the image.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrUnexpectedDimension is returned when the vector length differs from the model profile.
	ErrUnexpectedDimension = errors.New("unexpected embedding dimension")
)

// Client computes face embeddings using the embedding server
type Client struct {
	baseURL     string
	model       string
	expectedDim int
	client      *http.Client
	limiter     *rate.Limiter
}

// NewClient creates a new embedding client. expectedDim of 0 disables the dimension check.
func NewClient(cfg *config.EmbeddingConfig, expectedDim int) *Client {
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	model := cfg.Model
	if model == "" {
		model = constants.DefaultEmbeddingModel
	}
	timeout := cfg.TimeoutSec
	if timeout <= 0 {
		timeout = constants.DefaultEmbeddingTimeoutSec
	}

	c := &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		model:       model,
		expectedDim: expectedDim,
		client:      &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// Area returns the bounding box area, 0 for a malformed box.
func (f FaceDetection) Area() float64 {
	if len(f.BBox) < 4 {
		return 0
	}
	w := f.BBox[2] - f.BBox[0]
	h := f.BBox[3] - f.BBox[1]
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// postMultipartImage posts the image as the "file" form field with a sniffed content type.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
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

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
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

// DetectFaces returns every face the server found in the image.
func (c *Client) DetectFaces(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &faceResp, nil
}

// ExtractFace returns the embedding of the most prominent face in the image.
// An image without a face yields ErrNoFaceDetected.
func (c *Client) ExtractFace(ctx context.Context, imageData []byte) ([]float32, error) {
	resp, err := c.DetectFaces(ctx, imageData)
	if err != nil {
		return nil, err
	}

	face, ok := MostProminent(resp.Faces)
	if !ok {
		return nil, ErrNoFaceDetected
	}
	if c.expectedDim > 0 && len(face.Embedding) != c.expectedDim {
		return nil, fmt.Errorf("%w: got %d, want %d for %s", ErrUnexpectedDimension, len(face.Embedding), c.expectedDim, c.Model())
	}
	return face.Embedding, nil
}

// MostProminent picks the face with the largest bounding box, falling back to
// the detection score on equal areas. Faces without an embedding are ignored.
func MostProminent(faces []FaceDetection) (FaceDetection, bool) {
	best := -1
	for i := range faces {
		if len(faces[i].Embedding) == 0 {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		a, b := faces[i].Area(), faces[best].Area()
		if a > b || (a == b && faces[i].DetScore > faces[best].DetScore) {
			best = i
		}
	}
	if best < 0 {
		return FaceDetection{}, false
	}
	return faces[best], true
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	switch {
	case data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47:
		return "image/png"
	case data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38:
		return "image/gif"
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "image/webp"
	}
	return "application/octet-stream"
}

// Model returns the model name being used
func (c *Client) Model() string {
	return c.model
}
