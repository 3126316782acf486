package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/zonecrest/lottery/config"
	"github.com/zonecrest/lottery/internal/commitment"
	"github.com/zonecrest/lottery/internal/draw"
	"github.com/zonecrest/lottery/internal/kafka"
	"github.com/zonecrest/lottery/internal/ledger"
	"github.com/zonecrest/lottery/internal/lock"
	"github.com/zonecrest/lottery/internal/model"
	"github.com/zonecrest/lottery/internal/receipt"
)

// ReadModelCache 读模型缓存与限流计数，mysql后端由Redis实现，memory后端为nil
type ReadModelCache interface {
	GetParticipantStats(participantID string) (*model.ParticipantStats, bool, error)
	SetParticipantStats(participantID string, stats *model.ParticipantStats) error
	DeleteParticipantStatsCache(participantID string) error
	GetLeaderboardCache(period string) ([]*model.LeaderboardEntry, bool, error)
	SetLeaderboardCache(period string, entries []*model.LeaderboardEntry) error
	DeleteLeaderboardCache() error
	IncrementRateCount(participantID string, window time.Duration) (int, error)
	DecrementRateCount(participantID string) error
	FlushReadModels() error
}

// LotteryService 兑付核心服务，串联解析、锁、限流、抽奖、承诺与台账写入
type LotteryService struct {
	ledger       ledger.Ledger
	cache        ReadModelCache
	receiptLock  lock.Lock
	parser       *receipt.Parser
	engine       *draw.Engine
	producer     *kafka.Producer
	phonePattern *regexp.Regexp

	maxScansPerHour int
	rateWindow      time.Duration
	currency        string
	lockTimeout     time.Duration
}

// NewLotteryService 创建兑付服务；cache与producer可为nil（memory后端的单实例模式）
func NewLotteryService(
	ledgerStore ledger.Ledger,
	cache ReadModelCache,
	receiptLock lock.Lock,
	parser *receipt.Parser,
	engine *draw.Engine,
	producer *kafka.Producer,
) (*LotteryService, error) {
	phonePattern, err := regexp.Compile(config.AppConfig.Participant.PhonePattern)
	if err != nil {
		return nil, fmt.Errorf("编译手机号正则表达式失败: %w", err)
	}

	return &LotteryService{
		ledger:          ledgerStore,
		cache:           cache,
		receiptLock:     receiptLock,
		parser:          parser,
		engine:          engine,
		producer:        producer,
		phonePattern:    phonePattern,
		maxScansPerHour: config.AppConfig.Lottery.MaxScansPerHour,
		rateWindow:      config.AppConfig.Lottery.RateWindow,
		currency:        config.AppConfig.Lottery.Currency,
		lockTimeout:     config.AppConfig.Lottery.LockTimeout,
	}, nil
}

// Register 注册参与者
func (s *LotteryService) Register(ctx context.Context, participantID string) error {
	if !s.phonePattern.MatchString(participantID) {
		return fmt.Errorf("手机号 %s 不符合格式要求: %w", participantID, model.ErrInvalidParticipant)
	}

	if err := s.ledger.RegisterParticipant(ctx, participantID); err != nil {
		return fmt.Errorf("注册参与者失败: %w", err)
	}
	return nil
}

// SubmitScan 兑付一张收据，唯一的写入入口
// 检查-预占-提交作为一个逻辑事务执行：并发兑付同一收据时恰好一次成功
func (s *LotteryService) SubmitScan(ctx context.Context, rawCode, participantID string) (*model.RedemptionResult, error) {
	// 1. 校验参与者标识
	if !s.phonePattern.MatchString(participantID) {
		return nil, fmt.Errorf("手机号 %s 不符合格式要求: %w", participantID, model.ErrInvalidParticipant)
	}

	// 2. 解析收据码
	parsed := s.parser.Parse(rawCode)
	if !parsed.Valid {
		return nil, fmt.Errorf("无法识别收据码: %w", model.ErrInvalidReceipt)
	}
	uniqueID := parsed.UniqueID

	// 3. 按收据唯一标识加锁，锁定检查-预占-提交全过程
	lockName := lock.ReceiptLockName(uniqueID)
	acquired, err := s.receiptLock.AcquireLock(lockName, s.lockTimeout)
	if err != nil {
		return nil, fmt.Errorf("获取收据锁失败: %w", err)
	}
	if !acquired {
		// 另一请求正在兑付同一收据，它提交后本次必然重复
		return nil, fmt.Errorf("收据 %s 正在被兑付: %w", uniqueID, model.ErrDuplicateReceipt)
	}
	defer func() {
		if err := s.receiptLock.ReleaseLock(lockName); err != nil {
			log.Printf("释放收据锁 %s 失败: %v", lockName, err)
		}
	}()

	// 4. 重复兑付检查
	redeemed, err := s.ledger.IsRedeemed(ctx, uniqueID)
	if err != nil {
		return nil, fmt.Errorf("查询收据兑付状态失败: %w", err)
	}
	if redeemed {
		return nil, fmt.Errorf("收据 %s 已被兑付: %w", uniqueID, model.ErrDuplicateReceipt)
	}

	// 5. 限流检查：Redis计数先行预占作为快速路径，超限时不再访问台账
	// 计数预占在兑付未提交的路径上回退，台账计数仍为最终裁决
	rateReserved := false
	if s.cache != nil {
		count, err := s.cache.IncrementRateCount(participantID, s.rateWindow)
		if err != nil {
			log.Printf("预占参与者 %s 限流计数失败: %v", participantID, err)
		} else {
			rateReserved = true
			if count > s.maxScansPerHour {
				s.releaseRateSlot(participantID)
				return nil, fmt.Errorf("每小时最多允许扫码 %d 次，请稍后再试: %w", s.maxScansPerHour, model.ErrRateLimited)
			}
		}
	}

	recent, err := s.ledger.CountRecentRedemptions(ctx, participantID, s.rateWindow)
	if err != nil {
		if rateReserved {
			s.releaseRateSlot(participantID)
		}
		return nil, fmt.Errorf("统计近期兑付次数失败: %w", err)
	}
	if recent >= s.maxScansPerHour {
		if rateReserved {
			s.releaseRateSlot(participantID)
		}
		return nil, fmt.Errorf("每小时最多允许扫码 %d 次，请稍后再试: %w", s.maxScansPerHour, model.ErrRateLimited)
	}

	// 6. 两段式抽奖
	drawResult, err := s.engine.Draw()
	if err != nil {
		if rateReserved {
			s.releaseRateSlot(participantID)
		}
		return nil, fmt.Errorf("执行抽奖失败: %w", err)
	}

	// 7. 生成随机种子并计算承诺哈希
	now := time.Now()
	seed := commitment.NewSeed()
	txHash := commitment.Hash(uniqueID, participantID, now, seed)

	entry := &model.RedemptionEntry{
		ReceiptUniqueID: uniqueID,
		ParticipantID:   participantID,
		RedeemedAt:      now,
		Outcome:         drawResult.Outcome,
		PrizeTier:       drawResult.PrizeTier,
		PrizeValue:      drawResult.PrizeValue,
		TransactionHash: txHash,
		RandomSeed:      seed,
	}

	// 8. 提交台账，唯一键冲突是并发场景下的最后防线
	// 提交失败时兑付未发生，回退预占的限流计数
	if err := s.ledger.Record(ctx, entry); err != nil {
		if rateReserved {
			s.releaseRateSlot(participantID)
		}
		if errors.Is(err, model.ErrDuplicateReceipt) {
			return nil, err
		}
		return nil, fmt.Errorf("写入兑付记录失败: %w", err)
	}

	// 9. 台账提交后限流计数不再回退，StatsFor失败也算一次兑付
	stats, err := s.ledger.StatsFor(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("查询参与者聚合失败: %w", err)
	}

	// 10. 发布兑付事件驱动读模型维护
	event := &model.RedemptionEvent{
		ReceiptUniqueID: uniqueID,
		ParticipantID:   participantID,
		Outcome:         entry.Outcome,
		PrizeTier:       entry.PrizeTier,
		RedeemedAt:      entry.RedeemedAt,
	}

	if s.producer != nil {
		if err := s.producer.SendRedemptionEvent(event); err != nil {
			log.Printf("发送兑付事件到Kafka失败: %v", err)
			// 消息发送失败时同步维护读模型缓存，保证数据一致性
			s.invalidateReadModels(participantID)
		}
	} else {
		s.invalidateReadModels(participantID)
	}

	return &model.RedemptionResult{
		Outcome:         entry.Outcome,
		PrizeTier:       entry.PrizeTier,
		PrizeValue:      entry.PrizeValue,
		TransactionHash: entry.TransactionHash,
		TotalScans:      stats.Scans,
		TotalWins:       stats.Wins,
		RedeemedAt:      entry.RedeemedAt,
	}, nil
}

// GetParticipantStats 获取参与者聚合统计
func (s *LotteryService) GetParticipantStats(ctx context.Context, participantID string) (*model.ParticipantStats, error) {
	if !s.phonePattern.MatchString(participantID) {
		return nil, fmt.Errorf("手机号 %s 不符合格式要求: %w", participantID, model.ErrInvalidParticipant)
	}

	// 先从缓存获取
	if s.cache != nil {
		stats, found, err := s.cache.GetParticipantStats(participantID)
		if err != nil {
			log.Printf("获取参与者 %s 统计缓存失败: %v", participantID, err)
		}
		if found && stats != nil {
			return stats, nil
		}
	}

	// 缓存未命中，从台账获取
	stats, err := s.ledger.StatsFor(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("查询参与者 %s 统计失败: %w", participantID, err)
	}

	// 更新缓存
	if s.cache != nil {
		if err := s.cache.SetParticipantStats(participantID, &stats); err != nil {
			log.Printf("更新参与者 %s 统计缓存失败: %v", participantID, err)
		}
	}

	return &stats, nil
}

// ProcessRedemptionEvent 处理兑付事件（消费者使用）
// 台账已在提交点同步写入，消费侧只负责读模型缓存的失效
func (s *LotteryService) ProcessRedemptionEvent(event *model.RedemptionEvent) error {
	s.invalidateReadModels(event.ParticipantID)
	return nil
}

// releaseRateSlot 兑付未完成时回退预占的限流计数
func (s *LotteryService) releaseRateSlot(participantID string) {
	if err := s.cache.DecrementRateCount(participantID); err != nil {
		log.Printf("回退参与者 %s 限流计数失败: %v", participantID, err)
	}
}

// invalidateReadModels 使参与者统计与排行榜缓存失效
func (s *LotteryService) invalidateReadModels(participantID string) {
	if s.cache == nil {
		return
	}

	if err := s.cache.DeleteParticipantStatsCache(participantID); err != nil {
		log.Printf("删除参与者 %s 统计缓存失败: %v", participantID, err)
	}
	if err := s.cache.DeleteLeaderboardCache(); err != nil {
		log.Printf("删除排行榜缓存失败: %v", err)
	}
}

// ResetAllData 清空全部台账与读模型数据，仅供演示/测试环境的管理端使用
func (s *LotteryService) ResetAllData(ctx context.Context, adminToken string) error {
	if adminToken == "" || adminToken != config.AppConfig.Admin.ResetToken {
		return fmt.Errorf("管理令牌无效")
	}

	if err := s.ledger.Reset(ctx); err != nil {
		return fmt.Errorf("清空台账失败: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.FlushReadModels(); err != nil {
			log.Printf("清空读模型缓存失败: %v", err)
		}
	}

	log.Printf("管理端已重置全部数据")
	return nil
}
