package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// FallbackText se devuelve cuando el sobre de respuesta no trae texto utilizable.
const FallbackText = "Desculpe, não consegui interpretar a resposta."

// Client define la interfaz para ejecutar un turno contra el backend conversacional.
type Client interface {
	Run(ctx context.Context, input string) (string, error)
}

// StatusError indica que el backend respondió con un estado distinto de 200.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("langflow http error: status=%d", e.Code)
}

// LangflowClient implementa Client contra la API /api/v1/run/{flow_id} de Langflow.
type LangflowClient struct {
	baseURL string
	flowID  string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewLangflowClient construye el cliente; timeout <= 0 usa 20 minutos.
func NewLangflowClient(baseURL, flowID, apiKey string, timeout time.Duration, logger *zap.Logger) *LangflowClient {
	if baseURL == "" {
		baseURL = "http://localhost:7860"
	}
	if timeout <= 0 {
		timeout = 20 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LangflowClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		flowID:  flowID,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *LangflowClient) Run(ctx context.Context, input string) (string, error) {
	reqBody := runRequest{
		InputValue: input,
		OutputType: "chat",
		InputType:  "chat",
		Tweaks:     map[string]any{},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/run/%s", c.baseURL, c.flowID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("langflow error status",
			zap.Int("status", resp.StatusCode),
			zap.Int("body_bytes", len(respBody)),
			zap.Duration("latency", time.Since(start)),
		)
		return "", &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	c.logger.Debug("langflow run finished", zap.Duration("latency", time.Since(start)))
	return ExtractText(respBody), nil
}

type runRequest struct {
	InputValue string         `json:"input_value"`
	OutputType string         `json:"output_type"`
	InputType  string         `json:"input_type"`
	Tweaks     map[string]any `json:"tweaks"`
}

// runResponse refleja solo el camino outputs[0].outputs[0].results.message.data.text.
type runResponse struct {
	Outputs []struct {
		Outputs []struct {
			Results *struct {
				Message *struct {
					Data *struct {
						Text string `json:"text"`
					} `json:"data"`
				} `json:"message"`
			} `json:"results"`
		} `json:"outputs"`
	} `json:"outputs"`
}

// ExtractText desenvuelve el sobre anidado de Langflow. Cualquier nivel ausente,
// vacío o con forma inesperada produce FallbackText.
func ExtractText(body []byte) string {
	var rr runResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return FallbackText
	}
	if len(rr.Outputs) == 0 || len(rr.Outputs[0].Outputs) == 0 {
		return FallbackText
	}
	results := rr.Outputs[0].Outputs[0].Results
	if results == nil || results.Message == nil || results.Message.Data == nil {
		return FallbackText
	}
	if results.Message.Data.Text == "" {
		return FallbackText
	}
	return results.Message.Data.Text
}
