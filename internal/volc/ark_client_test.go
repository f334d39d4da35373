package volc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestGenerateImagesParsesURLAndB64(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/images/generations", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"url":"https://ark/img1.png"},{"b64_json":"QUJD","format":"jpeg"}]}`))
	}))
	defer srv.Close()

	c := NewArkClient(srv.URL, "test-key", false, testLogger())
	urls, err := c.GenerateImages(context.Background(), ImageGenParams{
		Prompt:      "年轻女性手持咖啡",
		ImageInputs: []string{"https://a/ref.png"},
	})
	require.NoError(t, err)
	require.Len(t, urls, 2)
	assert.Equal(t, "https://ark/img1.png", urls[0])
	assert.Equal(t, "data:image/jpeg;base64,QUJD", urls[1])

	// 默认模型与尺寸、参考图输入都在请求体里
	assert.Equal(t, "doubao-seedream-4.0", gotBody["model"])
	assert.Equal(t, "2K", gotBody["size"])
	assert.Equal(t, []any{"https://a/ref.png"}, gotBody["image"])
}

func TestGenerateImagesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewArkClient(srv.URL, "k", false, testLogger())
	_, err := c.GenerateImages(context.Background(), ImageGenParams{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 429")
}

func TestCreateVideoTaskBuildsPrompt(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/contents/generations/tasks", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"id":"task-1"}`))
	}))
	defer srv.Close()

	c := NewArkClient(srv.URL, "k", false, testLogger())
	id, err := c.CreateVideoTask(context.Background(), VideoTaskParams{
		Model:           "doubao-seedance-1-5-pro-251215",
		Prompt:          "推镜到产品",
		FirstFrameURL:   "https://a/ff.png",
		DurationSeconds: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, "task-1", id)

	content := gotBody["content"].([]any)
	require.Len(t, content, 2)
	text := content[0].(map[string]any)["text"].(string)
	// 时长与水印开关拼进提示词
	assert.True(t, strings.HasSuffix(text, "--duration 5 --watermark false"), text)
	imagePart := content[1].(map[string]any)["image_url"].(map[string]any)
	assert.Equal(t, "first_frame", imagePart["role"])
}

func TestPollVideoTaskSucceedsAfterPending(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/contents/generations/tasks/task-1", r.URL.Path)
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Write([]byte(`{"status":"running"}`))
			return
		}
		w.Write([]byte(`{"status":"succeeded","content":{"video_url":"https://ark/v.mp4","last_frame_url":"https://ark/last.png"}}`))
	}))
	defer srv.Close()

	c := NewArkClient(srv.URL, "k", false, testLogger())
	st, err := c.PollVideoTask(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, "https://ark/v.mp4", st.VideoURL)
	assert.Equal(t, "https://ark/last.png", st.LastFrameURL)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&hits), int32(2))
}

func TestPollVideoTaskFailedIsPermanent(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"status":"failed"}`))
	}))
	defer srv.Close()

	c := NewArkClient(srv.URL, "k", false, testLogger())
	_, err := c.PollVideoTask(context.Background(), "task-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
	// 终态不再重试
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestMockModeShortCircuits(t *testing.T) {
	c := NewArkClient("http://unreachable.invalid", "", true, testLogger())

	urls, err := c.GenerateImages(context.Background(), ImageGenParams{Prompt: "p"})
	require.NoError(t, err)
	require.Len(t, urls, 1)
	assert.True(t, strings.HasPrefix(urls[0], "data:image/png;base64,"))

	id, err := c.CreateVideoTask(context.Background(), VideoTaskParams{})
	require.NoError(t, err)
	assert.Equal(t, "mock-task", id)

	st, err := c.GetVideoTask(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", st.Status)
}
