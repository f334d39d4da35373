package volc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// ArkClient 火山方舟 REST 客户端：图片生成 + 视频任务轮询。
// 对话模型不走这里，统一走 eino 的 ark ChatModel。
type ArkClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Mock       bool
	Log        *logrus.Logger
}

func NewArkClient(baseURL, apiKey string, mock bool, log *logrus.Logger) *ArkClient {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ArkClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		Mock:       mock,
		Log:        log,
	}
}

type ImageGenParams struct {
	Model                     string
	Prompt                    string
	Size                      string
	SequentialImageGeneration string
	ImageInputs               []string
	MaxImages                 int
	Watermark                 bool
}

func (c *ArkClient) GenerateImages(ctx context.Context, p ImageGenParams) ([]string, error) {
	if c.Mock {
		// 1x1 PNG pixel base64
		pixel := "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR4nGNgYAAAAAMAASsJTYQAAAAASUVORK5CYII="
		return []string{"data:image/png;base64," + pixel}, nil
	}
	if p.Model == "" {
		p.Model = "doubao-seedream-4.0"
	}
	if p.Size == "" {
		p.Size = "2K"
	}
	if p.MaxImages == 0 {
		p.MaxImages = 1
	}
	body := map[string]any{
		"model":     p.Model,
		"prompt":    p.Prompt,
		"size":      p.Size,
		"watermark": p.Watermark,
	}
	if p.SequentialImageGeneration != "" {
		body["sequential_image_generation"] = p.SequentialImageGeneration
		if p.SequentialImageGeneration == "auto" && p.MaxImages > 0 {
			body["sequential_image_generation_options"] = map[string]any{"max_images": p.MaxImages}
		}
	}
	if len(p.ImageInputs) > 0 {
		body["image"] = p.ImageInputs
	}

	var resp struct {
		Data []struct {
			URL    string `json:"url"`
			B64    string `json:"b64_json"`
			Format string `json:"format"`
		} `json:"data"`
	}
	if err := c.postJSON(ctx, "/images/generations", body, &resp); err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(resp.Data))
	for _, d := range resp.Data {
		if d.URL != "" {
			urls = append(urls, d.URL)
			continue
		}
		if d.B64 != "" {
			fmtType := d.Format
			if fmtType == "" {
				fmtType = "png"
			}
			urls = append(urls, "data:image/"+fmtType+";base64,"+d.B64)
		}
	}
	if len(urls) == 0 {
		return nil, errors.New("no images returned")
	}
	return urls, nil
}

type VideoTaskParams struct {
	Model           string
	Prompt          string
	FirstFrameURL   string
	LastFrameURL    string
	DurationSeconds int
	Watermark       bool
}

func (c *ArkClient) CreateVideoTask(ctx context.Context, p VideoTaskParams) (string, error) {
	if c.Mock {
		return "mock-task", nil
	}
	if p.Model == "" {
		return "", errors.New("video model required")
	}
	prompt := p.Prompt
	if p.DurationSeconds > 0 {
		prompt = fmt.Sprintf("%s --duration %d", prompt, p.DurationSeconds)
	}
	if !p.Watermark {
		prompt += " --watermark false"
	}
	content := []map[string]any{{"type": "text", "text": prompt}}

	// 首帧 + 可选尾帧
	if p.FirstFrameURL != "" {
		content = append(content, map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": p.FirstFrameURL, "role": "first_frame"},
		})
	}
	if p.LastFrameURL != "" {
		content = append(content, map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": p.LastFrameURL, "role": "last_frame"},
		})
	}

	body := map[string]any{
		"model":   p.Model,
		"content": content,
	}
	var resp map[string]any
	if err := c.postJSON(ctx, "/contents/generations/tasks", body, &resp); err != nil {
		return "", err
	}
	if id, ok := resp["task_id"].(string); ok && id != "" {
		return id, nil
	}
	if id, ok := resp["id"].(string); ok && id != "" {
		return id, nil
	}
	return "", errors.New("no task id in response")
}

type VideoTaskStatus struct {
	Status       string
	VideoURL     string
	LastFrameURL string
}

func (c *ArkClient) GetVideoTask(ctx context.Context, taskID string) (VideoTaskStatus, error) {
	if c.Mock {
		return VideoTaskStatus{Status: "succeeded", VideoURL: "https://example.com/mock_video.mp4"}, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.BaseURL+"/contents/generations/tasks/"+taskID, nil)
	if err != nil {
		return VideoTaskStatus{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return VideoTaskStatus{}, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return VideoTaskStatus{}, fmt.Errorf("http %d", res.StatusCode)
	}
	var resp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return VideoTaskStatus{}, err
	}
	out := VideoTaskStatus{Status: getString(resp, "status")}
	out.VideoURL = getString(resp, "video_url")
	if content, ok := resp["content"].(map[string]any); ok {
		if out.VideoURL == "" {
			out.VideoURL = getString(content, "video_url")
		}
		out.LastFrameURL = getString(content, "last_frame_url")
	}
	if out.VideoURL == "" {
		if o, ok := resp["output"].(map[string]any); ok {
			out.VideoURL = getString(o, "video_url")
		}
	}
	return out, nil
}

// PollVideoTask 固定 3 秒间隔轮询直到任务结束或 ctx 取消
func (c *ArkClient) PollVideoTask(ctx context.Context, taskID string) (VideoTaskStatus, error) {
	var result VideoTaskStatus
	operation := func() error {
		st, err := c.GetVideoTask(ctx, taskID)
		if err != nil {
			return backoff.Permanent(err)
		}
		switch st.Status {
		case "succeeded":
			result = st
			return nil
		case "failed", "cancelled":
			return backoff.Permanent(fmt.Errorf("video task %s %s", taskID, st.Status))
		}
		return fmt.Errorf("video task %s pending: %s", taskID, st.Status)
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(3*time.Second), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return VideoTaskStatus{}, err
	}
	return result, nil
}

func (c *ArkClient) postJSON(ctx context.Context, path string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, strings.NewReader(string(b)))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	c.Log.WithFields(logrus.Fields{"event": "ark_request", "path": path}).Debug("POST " + req.URL.String())
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("http %d: %s", res.StatusCode, string(bodyBytes))
	}
	return json.Unmarshal(bodyBytes, out)
}

func getString(m map[string]any, k string) string {
	if v, ok := m[k]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
