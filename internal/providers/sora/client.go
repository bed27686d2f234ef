package sora

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gengateway/internal/domain"
	"gengateway/internal/generation"
	"gengateway/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("sora: api key is required")

// Options configures the backend client.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
	// PollUnit scales the polling schedule. Intervals run 5, 3 and 2 units
	// as progress advances, plus 2 units per stalled poll up to 10 units.
	PollUnit  time.Duration
	MaxStalls int
}

// Client talks to an OpenAI-style video generation API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
	pollUnit   time.Duration
	maxStalls  int
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("sora: base url is required")
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	unit := opts.PollUnit
	if unit <= 0 {
		unit = time.Second
	}
	maxStalls := opts.MaxStalls
	if maxStalls <= 0 {
		maxStalls = 60
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
		pollUnit:   unit,
		maxStalls:  maxStalls,
		sleep:      sleepCtx,
	}, nil
}

type taskError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

type videoTask struct {
	ID     string `json:"id"`
	Object string `json:"object"`
	Model  string `json:"model"`
	Status string `json:"status"`
	// Progress is a percentage; some deployments send it as a float.
	Progress      float64 `json:"progress"`
	URL           string  `json:"url"`
	Size          string  `json:"size"`
	Permalink     string  `json:"permalink"`
	RevisedPrompt string  `json:"revised_prompt"`
	Output        *struct {
		URL string `json:"url"`
	} `json:"output"`
	Error *taskError `json:"error"`
	Data  []struct {
		URL           string `json:"url"`
		Permalink     string `json:"permalink"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

func (t *videoTask) resolvedURL() string {
	if t.URL != "" {
		return t.URL
	}
	if t.Output != nil && t.Output.URL != "" {
		return t.Output.URL
	}
	if len(t.Data) > 0 {
		return t.Data[0].URL
	}
	return ""
}

func completed(status string) bool { return status == "completed" || status == "succeeded" }

func failed(status string) bool { return status == "failed" || status == "cancelled" }

// GenerateVideo submits a video or remix task and waits for its artifact.
func (c *Client) GenerateVideo(ctx context.Context, req *generation.ValidatedRequest) ([]domain.Artifact, error) {
	var (
		task *videoTask
		err  error
	)
	if req.RemixTargetID != "" {
		task, err = c.submitRemix(ctx, req)
	} else {
		task, err = c.submitVideo(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if failed(task.Status) {
		return nil, taskFailure(task)
	}
	if task.resolvedURL() == "" {
		if task.ID == "" {
			return nil, errors.New("sora: response carried neither a task id nor a url")
		}
		task, err = c.poll(ctx, task.ID)
		if err != nil {
			return nil, err
		}
	}
	w, h := parseSize(task.Size)
	if w == 0 {
		w, h = parseSize(req.Size)
	}
	return []domain.Artifact{{
		URL:           task.resolvedURL(),
		Permalink:     task.Permalink,
		RevisedPrompt: task.RevisedPrompt,
		Width:         w,
		Height:        h,
	}}, nil
}

func (c *Client) submitVideo(ctx context.Context, req *generation.ValidatedRequest) (*videoTask, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := [][2]string{
		{"prompt", req.Prompt},
		{"model", req.Model},
		{"seconds", req.Seconds},
		{"size", req.Size},
		{"orientation", req.Orientation},
		{"style_id", req.StyleID},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("sora: encode form: %w", err)
		}
	}
	if ref := req.ReferenceImage(); len(ref) > 0 {
		part, err := mw.CreateFormFile("input_reference", "input.jpg")
		if err != nil {
			return nil, fmt.Errorf("sora: encode form: %w", err)
		}
		if _, err := part.Write(ref); err != nil {
			return nil, fmt.Errorf("sora: encode form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("sora: encode form: %w", err)
	}
	var task videoTask
	if err := c.do(ctx, http.MethodPost, "/v1/videos", mw.FormDataContentType(), &body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) submitRemix(ctx context.Context, req *generation.ValidatedRequest) (*videoTask, error) {
	payload := map[string]any{
		"prompt":     req.Prompt,
		"model":      req.Model,
		"async_mode": true,
	}
	if req.Seconds != "" {
		payload["seconds"] = req.Seconds
	}
	if req.Orientation != "" {
		payload["orientation"] = req.Orientation
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("sora: encode request: %w", err)
	}
	path := "/v1/videos/" + url.PathEscape(req.RemixTargetID) + "/remix"
	var task videoTask
	if err := c.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(raw), &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// PollInterval returns the wait before the next status check.
func PollInterval(unit time.Duration, progress float64, stalls int) time.Duration {
	var n int
	switch {
	case progress < 30:
		n = 5
	case progress < 70:
		n = 3
	default:
		n = 2
	}
	if stalls > 0 {
		n = min(n+2*stalls, 10)
	}
	return time.Duration(n) * unit
}

func (c *Client) poll(ctx context.Context, taskID string) (*videoTask, error) {
	lastProgress := -1.0
	stalls := 0
	for {
		var task videoTask
		if err := c.do(ctx, http.MethodGet, "/v1/videos/"+url.PathEscape(taskID), "", nil, &task); err != nil {
			return nil, err
		}
		c.logger.Debug().Str("task_id", taskID).Str("status", task.Status).Float64("progress", task.Progress).Msg("sora: poll")
		switch {
		case completed(task.Status):
			if task.resolvedURL() == "" {
				return nil, errors.New("sora: task completed without a url")
			}
			return &task, nil
		case failed(task.Status):
			return nil, taskFailure(&task)
		}
		if task.Progress == lastProgress {
			stalls++
			if stalls >= c.maxStalls {
				return nil, domain.NewError(domain.KindBackendTimeout, "", "generation stalled")
			}
		} else {
			stalls = 0
			lastProgress = task.Progress
		}
		if err := c.sleep(ctx, PollInterval(c.pollUnit, task.Progress, stalls)); err != nil {
			return nil, err
		}
	}
}

type imageResponse struct {
	Data []struct {
		URL           string `json:"url"`
		B64JSON       string `json:"b64_json"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

// GenerateImage calls the synchronous image endpoint.
func (c *Client) GenerateImage(ctx context.Context, req *generation.ValidatedRequest) ([]domain.Artifact, error) {
	payload := map[string]any{
		"prompt": req.Prompt,
		"model":  req.Model,
		"n":      req.Count,
	}
	if req.Size != "" {
		payload["size"] = req.Size
	}
	if req.StyleID != "" {
		payload["style"] = req.StyleID
	}
	if req.ResponseFormat != "" {
		format := req.ResponseFormat
		if format == "base64" {
			format = "b64_json"
		}
		payload["response_format"] = format
	}
	if ref := req.ReferenceImage(); len(ref) > 0 {
		payload["input_image"] = base64.StdEncoding.EncodeToString(ref)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("sora: encode request: %w", err)
	}
	var decoded imageResponse
	if err := c.do(ctx, http.MethodPost, "/v1/images/generations", "application/json", bytes.NewReader(raw), &decoded); err != nil {
		return nil, err
	}
	w, h := parseSize(req.Size)
	out := make([]domain.Artifact, 0, len(decoded.Data))
	for _, d := range decoded.Data {
		if d.URL == "" && d.B64JSON == "" {
			continue
		}
		out = append(out, domain.Artifact{URL: d.URL, B64JSON: d.B64JSON, RevisedPrompt: d.RevisedPrompt, Width: w, Height: h})
	}
	return out, nil
}

type characterResponse struct {
	ID   string `json:"id"`
	Data struct {
		CameoID     string `json:"cameo_id"`
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
		Message     string `json:"message"`
	} `json:"data"`
}

// CreateCharacter uploads the source video for identity extraction.
func (c *Client) CreateCharacter(ctx context.Context, req *generation.ValidatedRequest) (*generation.CharacterOutcome, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := [][2]string{
		{"model", req.Model},
		{"timestamps", req.Timestamps},
		{"username", req.Username},
		{"display_name", req.DisplayName},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("sora: encode form: %w", err)
		}
	}
	part, err := mw.CreateFormFile("video", "video.mp4")
	if err != nil {
		return nil, fmt.Errorf("sora: encode form: %w", err)
	}
	if _, err := part.Write(req.Video); err != nil {
		return nil, fmt.Errorf("sora: encode form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("sora: encode form: %w", err)
	}
	var decoded characterResponse
	if err := c.do(ctx, http.MethodPost, "/v1/characters", mw.FormDataContentType(), &body, &decoded); err != nil {
		return nil, err
	}
	backendID := decoded.Data.CameoID
	if backendID == "" {
		backendID = decoded.ID
	}
	return &generation.CharacterOutcome{BackendID: backendID, Message: decoded.Data.Message}, nil
}

// newAPIEnvelope is the relay wrapper some deployments put around task
// payloads: {"code": "...", "message": "<json>"}.
type newAPIEnvelope struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
	Error   *taskError      `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("sora: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sora: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("sora: read response: %w", err)
	}

	payload := unwrapEnvelope(raw)
	if resp.StatusCode >= 300 {
		var probe struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(payload, &probe) == nil && probe.ID != "" && resp.StatusCode < 500 {
			return json.Unmarshal(payload, out)
		}
		c.logger.Warn().Int("status", resp.StatusCode).Str("path", path).
			Str("detail", errorDetail(raw)).Msg("sora: backend error")
		return statusError(resp.StatusCode)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("sora: decode response: %w", err)
	}
	return nil
}

func unwrapEnvelope(raw []byte) []byte {
	var env newAPIEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Code) == 0 || env.Message == "" {
		return raw
	}
	msg := strings.TrimSpace(env.Message)
	if !strings.HasPrefix(msg, "{") {
		return raw
	}
	var probe struct {
		ID string `json:"id"`
	}
	if json.Unmarshal([]byte(msg), &probe) != nil || probe.ID == "" {
		return raw
	}
	return []byte(msg)
}

func errorDetail(raw []byte) string {
	var env newAPIEnvelope
	if json.Unmarshal(raw, &env) == nil {
		if env.Error != nil && env.Error.Message != "" {
			return env.Error.Message
		}
		if env.Message != "" {
			return env.Message
		}
	}
	if len(raw) > 200 {
		raw = raw[:200]
	}
	return string(raw)
}

func statusError(status int) error {
	switch status {
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return domain.NewError(domain.KindBackendTimeout, "", "generation backend timed out")
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusBadGateway:
		return domain.NewError(domain.KindBackendUnavailable, "", "generation backend is busy")
	}
	if status >= 500 {
		return domain.NewError(domain.KindBackendUnavailable, "", "generation backend failed")
	}
	return domain.NewError(domain.KindBackendUnavailable, "", fmt.Sprintf("generation backend rejected the request (status %d)", status))
}

func taskFailure(task *videoTask) error {
	msg := "generation failed"
	if task.Error != nil && task.Error.Message != "" {
		msg = "generation failed: " + task.Error.Message
	}
	return domain.NewError(domain.KindBackendUnavailable, "", msg)
}

func parseSize(size string) (int, int) {
	w, h, ok := strings.Cut(strings.ToLower(size), "x")
	if !ok {
		return 0, 0
	}
	wi, err1 := strconv.Atoi(w)
	hi, err2 := strconv.Atoi(h)
	if err1 != nil || err2 != nil {
		return 0, 0
	}
	return wi, hi
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ generation.Backend = (*Client)(nil)
