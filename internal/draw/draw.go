package draw

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/zonecrest/lottery/config"
	"github.com/zonecrest/lottery/internal/model"
)

// Source 随机源接口，生产环境使用密码学随机源，测试使用可播种的确定性源
type Source interface {
	// Percent 返回[0,100)区间内的均匀随机值
	Percent() (float64, error)
}

// CryptoSource 基于crypto/rand的随机源
type CryptoSource struct{}

func NewCryptoSource() *CryptoSource {
	return &CryptoSource{}
}

// Percent 从crypto/rand读取8字节生成[0,100)的均匀随机值
func (s *CryptoSource) Percent() (float64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("读取随机字节失败: %w", err)
	}

	// 取53位尾数生成[0,1)的均匀浮点数
	n := binary.BigEndian.Uint64(buf[:]) >> 11
	return float64(n) / (1 << 53) * 100, nil
}

// Result 单次抽奖结果
type Result struct {
	Outcome    string
	PrizeTier  string
	PrizeValue float64
}

// Engine 两段式抽奖引擎：先判定输赢，中奖后按累计份额选定奖项
type Engine struct {
	winPercentage float64
	prizes        []config.PrizeTier
	source        Source
}

// NewEngine 创建抽奖引擎，奖项份额之和必须为100
func NewEngine(winPercentage float64, prizes []config.PrizeTier, source Source) (*Engine, error) {
	if winPercentage < 0 || winPercentage > 100 {
		return nil, fmt.Errorf("中奖概率必须在0到100之间，当前: %v", winPercentage)
	}
	if len(prizes) == 0 {
		return nil, fmt.Errorf("奖项配置不能为空")
	}

	var totalShare float64
	for _, prize := range prizes {
		totalShare += prize.Share
	}
	if math.Abs(totalShare-100) > 1e-9 {
		return nil, fmt.Errorf("奖项份额之和必须为100，当前: %v", totalShare)
	}

	return &Engine{
		winPercentage: winPercentage,
		prizes:        prizes,
		source:        source,
	}, nil
}

// Draw 执行一次抽奖
func (e *Engine) Draw() (*Result, error) {
	r, err := e.source.Percent()
	if err != nil {
		return nil, fmt.Errorf("获取输赢随机值失败: %w", err)
	}

	if r >= e.winPercentage {
		return &Result{Outcome: model.OutcomeLose}, nil
	}

	r2, err := e.source.Percent()
	if err != nil {
		return nil, fmt.Errorf("获取奖项随机值失败: %w", err)
	}

	// 按配置顺序累计份额，首个累计值超过r2的奖项中选
	var cumulative float64
	for _, prize := range e.prizes {
		cumulative += prize.Share
		if r2 < cumulative {
			return &Result{
				Outcome:    model.OutcomeWin,
				PrizeTier:  prize.Label,
				PrizeValue: prize.Value,
			}, nil
		}
	}

	// 份额之和为100时不应走到这里，浮点舍入兜底选择首个奖项
	first := e.prizes[0]
	return &Result{
		Outcome:    model.OutcomeWin,
		PrizeTier:  first.Label,
		PrizeValue: first.Value,
	}, nil
}
