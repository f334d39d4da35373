package agent

import (
	"context"
	"fmt"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"tvcagent/internal/config"
	"tvcagent/internal/gen"
	"tvcagent/internal/session"
)

// Runtime 工具执行期的共享依赖。状态读写走闭包，
// 由外层把持久化收口到回合结束。
type Runtime struct {
	TraceID    string
	GetState   func() session.State
	SetState   func(session.State)
	SendStatus func(text, op string)
	Gen        gen.Client
	Image      config.ImageConfig
	Video      config.VideoConfig
	Log        *logrus.Logger
}

func (r *Runtime) status(text, op string) {
	if r.SendStatus != nil {
		r.SendStatus(text, op)
	}
}

// Tools 返回全量工具集，顺序即暴露给模型的顺序
func Tools(rt *Runtime) []einotool.InvokableTool {
	return []einotool.InvokableTool{
		&loadSkillTool{rt: rt},
		&generateImagesTool{rt: rt},
		&generateVideosTool{rt: rt},
		&assetsResolveTool{rt: rt},
		&recommendMusicTool{rt: rt},
	}
}

// ToolInfos 收集 WithTools 绑定所需的描述
func ToolInfos(ctx context.Context, tools []einotool.InvokableTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

type loadSkillTool struct{ rt *Runtime }

func (t *loadSkillTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	params := map[string]*schema.ParameterInfo{
		"skill": {Type: schema.String, Required: true, Desc: "技能名称"},
	}
	return &schema.ToolInfo{
		Name:        "load_skill_instructions",
		Desc:        "加载技能指令（读取 skills/<skill>/SKILL.md 内容）",
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}, nil
}

func (t *loadSkillTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...einotool.Option) (string, error) {
	return t.rt.runLoadSkill(argumentsInJSON)
}

type generateImagesTool struct{ rt *Runtime }

func (t *generateImagesTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	params := map[string]*schema.ParameterInfo{
		"requests": {
			Type: schema.Array, Required: true,
			Desc: "生成请求列表。参考图需给 category（role/background/item）与 name；首帧图需给 reference_image_ordinals",
			ElemInfo: &schema.ParameterInfo{
				Type: schema.Object,
				SubParams: map[string]*schema.ParameterInfo{
					"kind":                     {Type: schema.String, Desc: "reference_image 或 first_frame"},
					"category":                 {Type: schema.String, Desc: "参考图类别：role/background/item"},
					"name":                     {Type: schema.String, Desc: "对象名称"},
					"description":              {Type: schema.String},
					"prompt":                   {Type: schema.String, Required: true},
					"reference_image_ordinals": {Type: schema.Array, ElemInfo: &schema.ParameterInfo{Type: schema.Integer}},
				},
			},
		},
	}
	return &schema.ToolInfo{
		Name:        "generate_images_batch",
		Desc:        "批量生成图片（参考图/首帧图），结果登记进资产表并返回序号。url 仅供模型内部使用，禁止对用户输出",
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}, nil
}

func (t *generateImagesTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...einotool.Option) (string, error) {
	return t.rt.runGenerateImages(ctx, argumentsInJSON)
}

type generateVideosTool struct{ rt *Runtime }

func (t *generateVideosTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	params := map[string]*schema.ParameterInfo{
		"requests": {
			Type: schema.Array, Required: true,
			Desc: "视频生成请求列表，first_frame_ordinal 指定输入首帧",
			ElemInfo: &schema.ParameterInfo{
				Type: schema.Object,
				SubParams: map[string]*schema.ParameterInfo{
					"first_frame_ordinal": {Type: schema.Integer, Required: true},
					"description":         {Type: schema.String},
					"prompt":              {Type: schema.String, Required: true},
					"duration_seconds": {Type: schema.Integer, Required: true,
						Desc: fmt.Sprintf("视频时长（秒），必须为 %d~%d 的整数", t.rt.Video.MinDuration, t.rt.Video.MaxDuration)},
				},
			},
		},
		"max_concurrent": {Type: schema.Integer, Desc: "并发上限，默认取服务配置"},
	}
	return &schema.ToolInfo{
		Name:        "generate_videos_from_images_batch",
		Desc:        "基于首帧图序号批量生成视频片段。url 仅供模型内部使用，禁止对用户输出",
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}, nil
}

func (t *generateVideosTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...einotool.Option) (string, error) {
	return t.rt.runGenerateVideos(ctx, argumentsInJSON)
}

type assetsResolveTool struct{ rt *Runtime }

func (t *assetsResolveTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	params := map[string]*schema.ParameterInfo{
		"kind":    {Type: schema.String, Required: true, Desc: "reference_image / first_frame / video_clip"},
		"ordinal": {Type: schema.Integer, Required: true},
	}
	return &schema.ToolInfo{
		Name:        "assets_resolve",
		Desc:        "按 kind+ordinal 查询资产元信息与可访问 URL（仅供模型内部使用，严禁对用户输出 URL）",
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}, nil
}

func (t *assetsResolveTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...einotool.Option) (string, error) {
	return t.rt.runAssetsResolve(argumentsInJSON)
}

type recommendMusicTool struct{ rt *Runtime }

func (t *recommendMusicTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	params := map[string]*schema.ParameterInfo{
		"scene_type":       {Type: schema.String, Required: true, Desc: "product 或 brand"},
		"mood":             {Type: schema.String, Required: true, Desc: "exciting/calm/elegant/energetic/dramatic"},
		"duration_seconds": {Type: schema.Integer, Required: true},
	}
	return &schema.ToolInfo{
		Name:        "recommend_background_music",
		Desc:        "推荐背景音乐风格（不生成文件）",
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}, nil
}

func (t *recommendMusicTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...einotool.Option) (string, error) {
	return t.rt.runRecommendMusic(argumentsInJSON)
}

var (
	_ einotool.InvokableTool = (*loadSkillTool)(nil)
	_ einotool.InvokableTool = (*generateImagesTool)(nil)
	_ einotool.InvokableTool = (*generateVideosTool)(nil)
	_ einotool.InvokableTool = (*assetsResolveTool)(nil)
	_ einotool.InvokableTool = (*recommendMusicTool)(nil)
)
