package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zonecrest/lottery/config"
	"github.com/zonecrest/lottery/internal/commitment"
	"github.com/zonecrest/lottery/internal/draw"
	"github.com/zonecrest/lottery/internal/ledger"
	"github.com/zonecrest/lottery/internal/lock"
	"github.com/zonecrest/lottery/internal/model"
	"github.com/zonecrest/lottery/internal/receipt"
)

const (
	testPhone      = "0241234567"
	testOtherPhone = "0551111222"
	testToken      = "GRA-2024-A1B2-C3D4-E5F6"
)

func setTestConfig() {
	config.AppConfig = config.Config{
		Lottery: config.LotteryConfig{
			WinPercentage: 10,
			Prizes: []config.PrizeTier{
				{Label: "A", Share: 70, Value: 1},
				{Label: "B", Share: 25, Value: 5},
				{Label: "C", Share: 5, Value: 20},
			},
			MaxScansPerHour: 10,
			RateWindow:      time.Hour,
			Currency:        "GHS",
			LockTimeout:     10 * time.Second,
		},
		Receipt: config.ReceiptConfig{
			TokenPattern: `^[A-Z]{2,4}-\d{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`,
			URLPrefix:    "https://verify.vat.gov.gh/receipt",
		},
		Participant: config.ParticipantConfig{
			PhonePattern: `^0[235][0-9]{8}$`,
		},
		Admin: config.AdminConfig{
			ResetToken: "test-reset-token",
		},
	}
}

// newTestService 构造memory后端、进程内锁、无缓存无消息队列的兑付服务
// winPercentage为0或100时兑付结果可预期
func newTestService(t *testing.T, winPercentage float64) (*LotteryService, *ledger.MemoryLedger) {
	t.Helper()
	memLedger := ledger.NewMemoryLedger()
	return newTestServiceOn(t, winPercentage, memLedger, nil), memLedger
}

// newTestServiceOn 在指定台账与缓存上构造兑付服务
func newTestServiceOn(t *testing.T, winPercentage float64, ledgerStore ledger.Ledger, cache ReadModelCache) *LotteryService {
	t.Helper()
	setTestConfig()
	config.AppConfig.Lottery.WinPercentage = winPercentage

	parser, err := receipt.NewParser(
		config.AppConfig.Receipt.TokenPattern,
		config.AppConfig.Receipt.URLPrefix,
	)
	require.NoError(t, err)

	engine, err := draw.NewEngine(winPercentage, config.AppConfig.Lottery.Prizes, draw.NewCryptoSource())
	require.NoError(t, err)

	svc, err := NewLotteryService(ledgerStore, cache, lock.NewLocalLock(), parser, engine, nil)
	require.NoError(t, err)

	return svc
}

// fakeReadModelCache 进程内的ReadModelCache实现，用于验证限流计数的预占与回退
type fakeReadModelCache struct {
	mu        sync.Mutex
	rateCount map[string]int
}

func newFakeReadModelCache() *fakeReadModelCache {
	return &fakeReadModelCache{rateCount: make(map[string]int)}
}

func (f *fakeReadModelCache) count(participantID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rateCount[participantID]
}

func (f *fakeReadModelCache) IncrementRateCount(participantID string, window time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rateCount[participantID]++
	return f.rateCount[participantID], nil
}

func (f *fakeReadModelCache) DecrementRateCount(participantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rateCount[participantID]--
	return nil
}

func (f *fakeReadModelCache) GetParticipantStats(participantID string) (*model.ParticipantStats, bool, error) {
	return nil, false, nil
}

func (f *fakeReadModelCache) SetParticipantStats(participantID string, stats *model.ParticipantStats) error {
	return nil
}

func (f *fakeReadModelCache) DeleteParticipantStatsCache(participantID string) error {
	return nil
}

func (f *fakeReadModelCache) GetLeaderboardCache(period string) ([]*model.LeaderboardEntry, bool, error) {
	return nil, false, nil
}

func (f *fakeReadModelCache) SetLeaderboardCache(period string, entries []*model.LeaderboardEntry) error {
	return nil
}

func (f *fakeReadModelCache) DeleteLeaderboardCache() error {
	return nil
}

func (f *fakeReadModelCache) FlushReadModels() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rateCount = make(map[string]int)
	return nil
}

func TestSubmitScanSuccess(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 100)

	result, err := svc.SubmitScan(ctx, testToken, testPhone)
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeWin, result.Outcome)
	assert.NotEmpty(t, result.PrizeTier)
	assert.Len(t, result.TransactionHash, 64)
	assert.Equal(t, 1, result.TotalScans)
	assert.Equal(t, 1, result.TotalWins)
}

func TestSubmitScanCommitmentVerifiable(t *testing.T) {
	ctx := context.Background()
	svc, memLedger := newTestService(t, 100)

	result, err := svc.SubmitScan(ctx, testToken, testPhone)
	require.NoError(t, err)

	// 第三方用台账中的四项输入重算承诺哈希，应与公布值一致
	wins, err := memLedger.WinEntries(ctx)
	require.NoError(t, err)
	require.Len(t, wins, 1)

	recomputed := commitment.Hash(
		wins[0].ReceiptUniqueID,
		wins[0].ParticipantID,
		wins[0].RedeemedAt,
		wins[0].RandomSeed,
	)
	assert.Equal(t, result.TransactionHash, recomputed)
}

func TestSubmitScanInvalidInputs(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 0)

	t.Run("非法收据码", func(t *testing.T) {
		_, err := svc.SubmitScan(ctx, "not-a-receipt", testPhone)
		assert.ErrorIs(t, err, model.ErrInvalidReceipt)
	})

	t.Run("非法手机号", func(t *testing.T) {
		_, err := svc.SubmitScan(ctx, testToken, "12345")
		assert.ErrorIs(t, err, model.ErrInvalidParticipant)
	})

	t.Run("手机号第二位不符合号段规则", func(t *testing.T) {
		_, err := svc.SubmitScan(ctx, testToken, "0941234567")
		assert.ErrorIs(t, err, model.ErrInvalidParticipant)
	})
}

func TestSubmitScanDuplicate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 0)

	_, err := svc.SubmitScan(ctx, testToken, testPhone)
	require.NoError(t, err)

	// 同一收据再次兑付，无论换谁提交都必须失败
	_, err = svc.SubmitScan(ctx, testToken, testPhone)
	assert.ErrorIs(t, err, model.ErrDuplicateReceipt)

	_, err = svc.SubmitScan(ctx, testToken, testOtherPhone)
	assert.ErrorIs(t, err, model.ErrDuplicateReceipt)
}

func TestSubmitScanConcurrentSameReceipt(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 0)

	const attempts = 30
	var wg sync.WaitGroup
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			phone := fmt.Sprintf("02400000%02d", i%100)
			_, err := svc.SubmitScan(ctx, testToken, phone)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	succeeded, duplicated := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		default:
			require.ErrorIs(t, err, model.ErrDuplicateReceipt)
			duplicated++
		}
	}

	assert.Equal(t, 1, succeeded, "并发兑付同一收据应恰好成功一次")
	assert.Equal(t, attempts-1, duplicated)
}

func TestSubmitScanRateLimit(t *testing.T) {
	ctx := context.Background()
	svc, memLedger := newTestService(t, 0)

	// 窗口内已有10次兑付，第11次必须被限流
	now := time.Now()
	for i := 0; i < 10; i++ {
		entry := &model.RedemptionEntry{
			ReceiptUniqueID: fmt.Sprintf("RCPT-RL-%d", i),
			ParticipantID:   testPhone,
			RedeemedAt:      now.Add(-time.Duration(i) * time.Minute),
			Outcome:         model.OutcomeLose,
		}
		require.NoError(t, memLedger.Record(ctx, entry))
	}

	_, err := svc.SubmitScan(ctx, testToken, testPhone)
	require.ErrorIs(t, err, model.ErrRateLimited)
	// 错误信息必须告知限额
	assert.Contains(t, err.Error(), "10")

	// 其他参与者不受影响
	_, err = svc.SubmitScan(ctx, testToken, testOtherPhone)
	assert.NoError(t, err)
}

func TestSubmitScanRateLimitWindowExpiry(t *testing.T) {
	ctx := context.Background()
	svc, memLedger := newTestService(t, 0)

	// 10次兑付全部落在窗口之外，新的兑付应当成功
	old := time.Now().Add(-61 * time.Minute)
	for i := 0; i < 10; i++ {
		entry := &model.RedemptionEntry{
			ReceiptUniqueID: fmt.Sprintf("RCPT-OLD-%d", i),
			ParticipantID:   testPhone,
			RedeemedAt:      old.Add(-time.Duration(i) * time.Minute),
			Outcome:         model.OutcomeLose,
		}
		require.NoError(t, memLedger.Record(ctx, entry))
	}

	_, err := svc.SubmitScan(ctx, testToken, testPhone)
	assert.NoError(t, err)
}

func TestSubmitScanRateFastPathRejects(t *testing.T) {
	ctx := context.Background()
	cache := newFakeReadModelCache()
	memLedger := ledger.NewMemoryLedger()
	svc := newTestServiceOn(t, 0, memLedger, cache)

	// 计数已达上限，快速路径直接拒绝且不落台账
	cache.rateCount[testPhone] = 10

	_, err := svc.SubmitScan(ctx, testToken, testPhone)
	require.ErrorIs(t, err, model.ErrRateLimited)

	// 预占的计数被回退
	assert.Equal(t, 10, cache.count(testPhone))

	redeemed, err := memLedger.IsRedeemed(ctx, testToken)
	require.NoError(t, err)
	assert.False(t, redeemed)
}

func TestSubmitScanRateSlotKeptOnCommit(t *testing.T) {
	ctx := context.Background()
	cache := newFakeReadModelCache()
	svc := newTestServiceOn(t, 0, ledger.NewMemoryLedger(), cache)

	_, err := svc.SubmitScan(ctx, testToken, testPhone)
	require.NoError(t, err)

	// 兑付提交后预占的计数保留
	assert.Equal(t, 1, cache.count(testPhone))
}

func TestSubmitScanLedgerRateAuthoritative(t *testing.T) {
	ctx := context.Background()
	cache := newFakeReadModelCache()
	memLedger := ledger.NewMemoryLedger()
	svc := newTestServiceOn(t, 0, memLedger, cache)

	// Redis计数为空但台账已达上限，台账裁决仍然生效
	now := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, memLedger.Record(ctx, &model.RedemptionEntry{
			ReceiptUniqueID: fmt.Sprintf("RCPT-AUTH-%d", i),
			ParticipantID:   testPhone,
			RedeemedAt:      now,
			Outcome:         model.OutcomeLose,
		}))
	}

	_, err := svc.SubmitScan(ctx, testToken, testPhone)
	require.ErrorIs(t, err, model.ErrRateLimited)

	// 快速路径预占的计数在台账拒绝后回退
	assert.Equal(t, 0, cache.count(testPhone))
}

// raceLedger 预检查永远报告未兑付，模拟预检查与提交之间被并发请求抢先的窗口
type raceLedger struct {
	*ledger.MemoryLedger
}

func (l *raceLedger) IsRedeemed(ctx context.Context, uniqueID string) (bool, error) {
	return false, nil
}

func TestSubmitScanRateSlotRolledBackOnRecordFailure(t *testing.T) {
	ctx := context.Background()
	cache := newFakeReadModelCache()
	svc := newTestServiceOn(t, 0, &raceLedger{ledger.NewMemoryLedger()}, cache)

	_, err := svc.SubmitScan(ctx, testToken, testPhone)
	require.NoError(t, err)
	require.Equal(t, 1, cache.count(testPhone))

	// 预检查被绕过后，台账唯一键拒绝提交，预占的计数必须回退
	_, err = svc.SubmitScan(ctx, testToken, testPhone)
	require.ErrorIs(t, err, model.ErrDuplicateReceipt)
	assert.Equal(t, 1, cache.count(testPhone))
}

func TestLeaderboardRankingAndBadges(t *testing.T) {
	ctx := context.Background()
	svc, memLedger := newTestService(t, 0)

	scanCounts := map[string]int{
		"0240000001": 45,
		"0240000002": 38,
		"0240000003": 32,
		"0240000004": 28,
		"0240000005": 22,
		"0240000006": 8,
	}
	now := time.Now()
	for phone, scans := range scanCounts {
		for i := 0; i < scans; i++ {
			entry := &model.RedemptionEntry{
				ReceiptUniqueID: fmt.Sprintf("RCPT-%s-%d", phone, i),
				ParticipantID:   phone,
				RedeemedAt:      now,
				Outcome:         model.OutcomeLose,
			}
			require.NoError(t, memLedger.Record(ctx, entry))
		}
	}

	entries, err := svc.Leaderboard(ctx, model.PeriodAllTime)
	require.NoError(t, err)
	require.Len(t, entries, 6)

	// 严格按扫码次数降序，第1名是45次
	wantScans := []int{45, 38, 32, 28, 22, 8}
	for i, entry := range entries {
		assert.Equal(t, i+1, entry.Rank)
		assert.Equal(t, wantScans[i], entry.Scans)
	}

	// 徽章是扫码次数的阶梯函数
	assert.Equal(t, model.BadgeSilver, entries[0].Badge) // 45
	assert.Equal(t, model.BadgeSilver, entries[1].Badge) // 38
	assert.Equal(t, model.BadgeSilver, entries[2].Badge) // 32
	assert.Equal(t, model.BadgeSilver, entries[3].Badge) // 28
	assert.Equal(t, model.BadgeBronze, entries[4].Badge) // 22
	assert.Equal(t, model.BadgeNone, entries[5].Badge)   // 8
}

func TestLeaderboardBadgeThresholds(t *testing.T) {
	assert.Equal(t, model.BadgeGold, badgeFor(50))
	assert.Equal(t, model.BadgeSilver, badgeFor(49))
	assert.Equal(t, model.BadgeSilver, badgeFor(25))
	assert.Equal(t, model.BadgeBronze, badgeFor(24))
	assert.Equal(t, model.BadgeBronze, badgeFor(10))
	assert.Equal(t, model.BadgeNone, badgeFor(9))
	assert.Equal(t, model.BadgeNone, badgeFor(0))
}

func TestLeaderboardWeeklyFilter(t *testing.T) {
	ctx := context.Background()
	svc, memLedger := newTestService(t, 0)
	now := time.Now()

	// 0241:本周2次+上周3次；0551:本周1次
	for i := 0; i < 2; i++ {
		require.NoError(t, memLedger.Record(ctx, &model.RedemptionEntry{
			ReceiptUniqueID: fmt.Sprintf("RCPT-CUR-%d", i),
			ParticipantID:   testPhone,
			RedeemedAt:      now,
			Outcome:         model.OutcomeLose,
		}))
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, memLedger.Record(ctx, &model.RedemptionEntry{
			ReceiptUniqueID: fmt.Sprintf("RCPT-PREV-%d", i),
			ParticipantID:   testPhone,
			RedeemedAt:      now.Add(-8 * 24 * time.Hour),
			Outcome:         model.OutcomeLose,
		}))
	}
	require.NoError(t, memLedger.Record(ctx, &model.RedemptionEntry{
		ReceiptUniqueID: "RCPT-OTHER-0",
		ParticipantID:   testOtherPhone,
		RedeemedAt:      now,
		Outcome:         model.OutcomeLose,
	}))

	allTime, err := svc.Leaderboard(ctx, model.PeriodAllTime)
	require.NoError(t, err)
	require.Len(t, allTime, 2)
	assert.Equal(t, 5, allTime[0].Scans)

	weekly, err := svc.Leaderboard(ctx, model.PeriodWeekly)
	require.NoError(t, err)
	require.Len(t, weekly, 2)
	// 上周的3次被时间窗口过滤
	assert.Equal(t, 2, weekly[0].Scans)
	assert.Equal(t, testPhone, weekly[0].ParticipantID)
}

func TestLeaderboardInvalidPeriod(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 0)

	_, err := svc.Leaderboard(ctx, "monthly")
	assert.Error(t, err)
}

func TestAuditLog(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, 100)

	_, err := svc.SubmitScan(ctx, testToken, testPhone)
	require.NoError(t, err)
	_, err = svc.SubmitScan(ctx, "GRA-2024-FFFF-0000-1111", testOtherPhone)
	require.NoError(t, err)

	entries, summary, err := svc.AuditLog(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	for _, entry := range entries {
		// 掩码只保留前3位和后3位
		assert.Len(t, entry.MaskedParticipantID, 10)
		assert.Contains(t, entry.MaskedParticipantID, "****")
		assert.NotEqual(t, testPhone, entry.MaskedParticipantID)

		// 校验数据足以让第三方重算承诺哈希
		assert.Len(t, entry.Verification.CommitmentHash, 64)
		assert.NotEmpty(t, entry.Verification.RandomSeed)
		assert.Len(t, entry.Verification.ReceiptHashFragment, 12)
	}

	assert.Equal(t, 2, summary.TotalWinners)
	assert.Contains(t, summary.TotalPayout, "GHS")
}

func TestMaskParticipantID(t *testing.T) {
	assert.Equal(t, "024****567", MaskParticipantID("0241234567"))
	assert.Equal(t, "055*****333", MaskParticipantID("05512345333"))
	assert.Equal(t, "******", MaskParticipantID("123456"))
	assert.Equal(t, "***", MaskParticipantID("abc"))
}

func TestResetAllData(t *testing.T) {
	ctx := context.Background()
	svc, memLedger := newTestService(t, 0)

	_, err := svc.SubmitScan(ctx, testToken, testPhone)
	require.NoError(t, err)

	t.Run("令牌错误时拒绝", func(t *testing.T) {
		assert.Error(t, svc.ResetAllData(ctx, "wrong-token"))
		assert.Error(t, svc.ResetAllData(ctx, ""))
	})

	t.Run("令牌正确时清空", func(t *testing.T) {
		require.NoError(t, svc.ResetAllData(ctx, "test-reset-token"))

		redeemed, err := memLedger.IsRedeemed(ctx, testToken)
		require.NoError(t, err)
		assert.False(t, redeemed)

		// 重置后同一收据可以重新兑付
		_, err = svc.SubmitScan(ctx, testToken, testPhone)
		assert.NoError(t, err)
	})
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	svc, memLedger := newTestService(t, 0)

	require.NoError(t, svc.Register(ctx, testPhone))
	require.NoError(t, svc.Register(ctx, testPhone)) // 幂等

	participant, err := memLedger.GetParticipant(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, testPhone, participant.ID)

	assert.ErrorIs(t, svc.Register(ctx, "badphone"), model.ErrInvalidParticipant)
}
