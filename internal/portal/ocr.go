package portal

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrCaptchaUnsolved means the OCR service answered without a solution.
var ErrCaptchaUnsolved = errors.New("captcha recognition returned no text")

// ocrClient talks to the external captcha recognition service: the image is
// posted base64 encoded and the solved text comes back in a JSON data field.
type ocrClient struct {
	endpoint string
	client   *http.Client
}

func newOCRClient(endpoint string, timeout time.Duration) *ocrClient {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &ocrClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (o *ocrClient) recognize(ctx context.Context, image []byte) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(image)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewBufferString(encoded))
	if err != nil {
		return "", fmt.Errorf("build ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr service returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read ocr response: %w", err)
	}

	var out struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode ocr response: %w", err)
	}
	if out.Data == "" {
		return "", ErrCaptchaUnsolved
	}
	return out.Data, nil
}
