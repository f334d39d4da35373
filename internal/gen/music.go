package gen

import "strings"

type MusicRecommendation struct {
	SceneType   string `json:"sceneType"`
	Mood        string `json:"mood"`
	Style       string `json:"style"`
	BPM         string `json:"bpm"`
	Instruments string `json:"instruments"`
}

type musicEntry struct {
	style       string
	bpm         string
	instruments string
}

var musicTable = map[string]map[string]musicEntry{
	"product": {
		"exciting":  {"电子/流行，节奏明快", "120-140", "合成器、鼓点、贝斯"},
		"calm":      {"轻音乐/环境音，简约清新", "60-80", "钢琴、Pad、轻打击"},
		"elegant":   {"古典/轻爵士，精致高雅", "80-110", "钢琴、弦乐、刷鼓"},
		"energetic": {"摇滚/电子，充满活力", "140+", "电吉他、鼓、合成器"},
		"dramatic":  {"管弦乐/史诗，震撼有力", "90-120", "弦乐、铜管、定音鼓"},
	},
	"brand": {
		"exciting":  {"现代电子/广告流行，时尚前沿", "110-135", "合成器、鼓、贝斯"},
		"calm":      {"氛围音乐/自然音效，舒适氛围", "60-85", "Pad、环境音、轻打击"},
		"elegant":   {"古典/精品音乐，高端形象", "70-100", "钢琴、弦乐"},
		"energetic": {"流行/舞曲，年轻化", "120-145", "鼓、贝斯、合成器"},
		"dramatic":  {"电影感配乐，故事感", "90-120", "弦乐、铜管"},
	},
}

// RecommendBackgroundMusic 场景 × 情绪查表，查不到退到 product/exciting
func RecommendBackgroundMusic(sceneType, mood string) MusicRecommendation {
	scene := strings.ToLower(strings.TrimSpace(sceneType))
	if scene == "" {
		scene = "product"
	}
	m := strings.ToLower(strings.TrimSpace(mood))
	if m == "" {
		m = "exciting"
	}
	picked, ok := musicTable[scene][m]
	if !ok {
		picked = musicTable["product"]["exciting"]
	}
	return MusicRecommendation{
		SceneType:   scene,
		Mood:        m,
		Style:       picked.style,
		BPM:         picked.bpm + " BPM",
		Instruments: picked.instruments,
	}
}
