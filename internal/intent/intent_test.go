package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseKeywords(t *testing.T) {
	cases := []struct {
		in   string
		want Kind
	}{
		{"继续", Continue},
		{"下一步", Continue},
		{"OK", Continue},
		{"好的，没问题", Continue},
		{"满意，就这样", Continue},
		{"修改一下镜头三", Modify},
		{"不满意，重新来", Modify},
		{"不行", Modify},
		{"帮我做一个咖啡机广告", Start},
		{"开始创作", Start},
		{"写个剧本吧", Start},
		{"这是我的产品介绍", Message},
		{"", Message},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Parse(c.in).Kind, "input=%q", c.in)
	}
}

func TestParseJump(t *testing.T) {
	it := Parse("回到步骤 2 看看")
	assert.Equal(t, Jump, it.Kind)
	assert.Equal(t, 2, it.Step)

	it = Parse("直接去步骤5")
	assert.Equal(t, Jump, it.Kind)
	assert.Equal(t, 5, it.Step)

	// 越界步号被夹回范围
	it = Parse("回到步骤 9")
	assert.Equal(t, 5, it.Step)
}

func TestNormalizeUserTextStripsStyleLock(t *testing.T) {
	in := "当前风格锁：日系清新\n帮我做个广告"
	assert.Equal(t, "帮我做个广告", NormalizeUserText(in))

	// 没有风格锁首行时原样返回
	assert.Equal(t, "继续", NormalizeUserText("  继续  "))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, Clamp(-3))
	assert.Equal(t, 3, Clamp(3))
	assert.Equal(t, 5, Clamp(8))
}

func TestGuardStep(t *testing.T) {
	// 不允许跨阶段跳跃
	assert.Equal(t, 2, GuardStep(1, 4))
	assert.Equal(t, 2, GuardStep(1, 2))
	assert.Equal(t, 0, GuardStep(3, 0))
	assert.Equal(t, 5, GuardStep(5, 9))
}
