package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/zonecrest/lottery/internal/model"
)

// 徽章阈值，扫码次数的阶梯函数
const (
	badgeGoldThreshold   = 50
	badgeSilverThreshold = 25
	badgeBronzeThreshold = 10
)

// weeklyWindow 周榜的时间窗口
const weeklyWindow = 7 * 24 * time.Hour

// Leaderboard 返回指定时间范围的排行榜
// 按扫码次数降序排列，次数相同时按参与者标识升序保证结果确定
func (s *LotteryService) Leaderboard(ctx context.Context, period string) ([]*model.LeaderboardEntry, error) {
	if period != model.PeriodAllTime && period != model.PeriodWeekly {
		return nil, fmt.Errorf("无效的时间范围: %s", period)
	}

	// 先从缓存获取
	if s.cache != nil {
		entries, found, err := s.cache.GetLeaderboardCache(period)
		if err != nil {
			log.Printf("获取排行榜缓存失败: %v", err)
		}
		if found {
			return entries, nil
		}
	}

	// 周榜按滑动时间窗口过滤兑付记录，全时段不过滤
	var since time.Time
	if period == model.PeriodWeekly {
		since = time.Now().Add(-weeklyWindow)
	}

	standings, err := s.ledger.Standings(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("查询排名数据失败: %w", err)
	}

	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].Scans != standings[j].Scans {
			return standings[i].Scans > standings[j].Scans
		}
		return standings[i].ParticipantID < standings[j].ParticipantID
	})

	for i, entry := range standings {
		entry.Rank = i + 1
		entry.Badge = badgeFor(entry.Scans)
	}

	// 更新缓存
	if s.cache != nil {
		if err := s.cache.SetLeaderboardCache(period, standings); err != nil {
			log.Printf("更新排行榜缓存失败: %v", err)
		}
	}

	return standings, nil
}

// badgeFor 按扫码次数判定徽章等级
func badgeFor(scans int) string {
	switch {
	case scans >= badgeGoldThreshold:
		return model.BadgeGold
	case scans >= badgeSilverThreshold:
		return model.BadgeSilver
	case scans >= badgeBronzeThreshold:
		return model.BadgeBronze
	default:
		return model.BadgeNone
	}
}
