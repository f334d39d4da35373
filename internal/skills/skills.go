// Package skills 提供各创作阶段的技能指令文档。
// 文档随二进制打包，加载后缓存。
package skills

import (
	"embed"
	"strings"
	"sync"

	"tvcagent/internal/errs"
)

//go:embed instructions/*.md
var instructionsFS embed.FS

// Names 全量技能清单，load_skill_instructions 只认这里的名字
var Names = []string{
	"tvc-orchestrator",
	"tvc-script",
	"tvc-reference-images",
	"tvc-storyboard",
	"tvc-first-frame",
	"tvc-video-generation",
	"tvc-background-music",
}

// 每个技能允许调用的工具
var allowedTools = map[string][]string{
	"tvc-orchestrator":     {"load_skill_instructions", "generate_images_batch", "generate_videos_from_images_batch", "assets_resolve", "recommend_background_music"},
	"tvc-script":           {"load_skill_instructions", "assets_resolve"},
	"tvc-reference-images": {"load_skill_instructions", "generate_images_batch", "assets_resolve"},
	"tvc-storyboard":       {"load_skill_instructions", "assets_resolve"},
	"tvc-first-frame":      {"load_skill_instructions", "generate_images_batch", "assets_resolve"},
	"tvc-video-generation": {"load_skill_instructions", "generate_videos_from_images_batch", "assets_resolve"},
	"tvc-background-music": {"load_skill_instructions", "recommend_background_music"},
}

var (
	cacheMu sync.RWMutex
	cache   = map[string]string{}
)

func Known(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}

// Load 读取技能指令正文
func Load(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errs.New(errs.CodeSkillNotFound, "Skill 名称为空")
	}
	cacheMu.RLock()
	if v, ok := cache[name]; ok {
		cacheMu.RUnlock()
		return v, nil
	}
	cacheMu.RUnlock()

	if !Known(name) {
		return "", errs.New(errs.CodeSkillNotFound, "Skill 不存在："+name)
	}
	raw, err := instructionsFS.ReadFile("instructions/" + name + ".md")
	if err != nil {
		return "", errs.New(errs.CodeSkillNotFound, "Skill 不存在："+name)
	}
	content := strings.TrimSpace(string(raw))
	cacheMu.Lock()
	cache[name] = content
	cacheMu.Unlock()
	return content, nil
}

// ToolAllowed 判断技能是否允许调用某工具
func ToolAllowed(skill, tool string) bool {
	for _, t := range allowedTools[skill] {
		if t == tool {
			return true
		}
	}
	return false
}
