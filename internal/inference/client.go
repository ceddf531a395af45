package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mindtrace/voiceid/internal/apperrors"
	"github.com/mindtrace/voiceid/internal/audio"
)

const (
	vadPath       = "/vad"
	embeddingPath = "/embedding"
	healthPath    = "/health"

	vadTimeout     = 2 * time.Second
	defaultTimeout = 30 * time.Second
)

// Client is an HTTP/JSON client for the inference service. It implements
// both VadModel and EmbeddingModel.
type Client struct {
	baseURL    string
	httpClient *http.Client
	sampleRate int
}

var (
	_ VadModel       = (*Client)(nil)
	_ EmbeddingModel = (*Client)(nil)
)

// NewClient creates an inference client and verifies the service is up.
// A failed health check surfaces as ModelUnavailable so listening can be
// disabled up front instead of failing per call.
func NewClient(baseURL string, sampleRate int) (*Client, error) {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		sampleRate: sampleRate,
	}
	if err := c.health(context.Background()); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeModelUnavailable, "inference service unreachable")
	}
	return c, nil
}

func (c *Client) health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

type vadRequest struct {
	Audio      string `json:"audio"` // base64 little-endian int16 PCM
	SampleRate int    `json:"sample_rate"`
}

type vadResponse struct {
	Probability float64 `json:"probability"`
}

// Infer returns the speech probability for one frame.
func (c *Client) Infer(ctx context.Context, frame audio.Frame) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, vadTimeout)
	defer cancel()

	req := vadRequest{
		Audio:      base64.StdEncoding.EncodeToString(audio.Int16ToBytes(frame.Samples)),
		SampleRate: c.sampleRate,
	}
	var resp vadResponse
	if err := c.post(ctx, vadPath, req, &resp); err != nil {
		return 0, err
	}
	if resp.Probability < 0 || resp.Probability > 1 {
		return 0, apperrors.Newf(apperrors.CodeDataIntegrity, "vad probability out of range: %f", resp.Probability)
	}
	return resp.Probability, nil
}

type embeddingRequest struct {
	Audio string `json:"audio"` // base64 WAV bytes
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Extract returns the speaker embedding for a WAV-encoded segment.
func (c *Client) Extract(ctx context.Context, wavBytes []byte) ([]float64, error) {
	req := embeddingRequest{Audio: base64.StdEncoding.EncodeToString(wavBytes)}
	var resp embeddingResponse
	if err := c.post(ctx, embeddingPath, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, apperrors.New(apperrors.CodeDataIntegrity, "empty embedding")
	}
	return resp.Embedding, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return apperrors.Wrap(err, apperrors.CodeTimeout, "inference call timed out")
		}
		return apperrors.Wrap(err, apperrors.CodeModelUnavailable, "inference call failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		code := apperrors.CodeTransientIO
		if resp.StatusCode == http.StatusBadRequest {
			code = apperrors.CodeInvalidArgument
		}
		return apperrors.Newf(code, "inference %s returned %d: %s", path, resp.StatusCode, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDataIntegrity, "decode response")
	}
	return nil
}
