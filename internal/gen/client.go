// Package gen 收口生成能力：图片、视频的窄接口 + 批量用例。
package gen

import (
	"context"
	"fmt"
	"sync/atomic"

	"tvcagent/internal/config"
	"tvcagent/internal/volc"
)

type ImageRequest struct {
	Prompt    string
	Images    []string // 参考图输入，可空
	Size      string
	Watermark bool
}

type VideoRequest struct {
	Prompt          string
	FirstFrameURL   string
	DurationSeconds int
	Watermark       bool
}

type VideoResult struct {
	VideoURL     string
	LastFrameURL string
}

// Client 生成服务的窄接口，方便测试替身
type Client interface {
	GenerateImage(ctx context.Context, req ImageRequest) (string, error)
	GenerateVideo(ctx context.Context, req VideoRequest) (VideoResult, error)
}

// ArkGen 基于方舟 REST 客户端的实现
type ArkGen struct {
	Ark        *volc.ArkClient
	ImageModel string
	VideoModel string
}

func NewArkGen(ark *volc.ArkClient, videoCfg config.VideoConfig) *ArkGen {
	return &ArkGen{Ark: ark, VideoModel: videoCfg.Model}
}

func (g *ArkGen) GenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	urls, err := g.Ark.GenerateImages(ctx, volc.ImageGenParams{
		Model:       g.ImageModel,
		Prompt:      req.Prompt,
		Size:        req.Size,
		ImageInputs: req.Images,
		Watermark:   req.Watermark,
	})
	if err != nil {
		return "", err
	}
	return urls[0], nil
}

func (g *ArkGen) GenerateVideo(ctx context.Context, req VideoRequest) (VideoResult, error) {
	taskID, err := g.Ark.CreateVideoTask(ctx, volc.VideoTaskParams{
		Model:           g.VideoModel,
		Prompt:          req.Prompt,
		FirstFrameURL:   req.FirstFrameURL,
		DurationSeconds: req.DurationSeconds,
		Watermark:       req.Watermark,
	})
	if err != nil {
		return VideoResult{}, fmt.Errorf("create video task: %w", err)
	}
	st, err := g.Ark.PollVideoTask(ctx, taskID)
	if err != nil {
		return VideoResult{}, err
	}
	if st.VideoURL == "" {
		return VideoResult{}, fmt.Errorf("video task %s returned no url", taskID)
	}
	return VideoResult{VideoURL: st.VideoURL, LastFrameURL: st.LastFrameURL}, nil
}

// MockClient 本地假数据实现，序号递增保证可断言
type MockClient struct {
	imageSeq int64
	videoSeq int64
}

func (m *MockClient) GenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	n := atomic.AddInt64(&m.imageSeq, 1)
	return fmt.Sprintf("https://mock.local/image_%d.png", n), nil
}

func (m *MockClient) GenerateVideo(ctx context.Context, req VideoRequest) (VideoResult, error) {
	n := atomic.AddInt64(&m.videoSeq, 1)
	return VideoResult{
		VideoURL:     fmt.Sprintf("https://mock.local/video_%d.mp4", n),
		LastFrameURL: fmt.Sprintf("https://mock.local/video_%d_last.png", n),
	}, nil
}
