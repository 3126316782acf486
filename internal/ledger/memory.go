package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zonecrest/lottery/internal/model"
)

// MemoryLedger 进程内台账实现，供演示模式与测试使用
// 所有写入都在互斥锁内完成检查与插入，保证同一收据只被兑付一次
type MemoryLedger struct {
	mu            sync.RWMutex
	entries       map[string]*model.RedemptionEntry   // receiptUniqueID -> entry
	byParticipant map[string][]*model.RedemptionEntry // participantID -> 按时间顺序的记录
	participants  map[string]*model.Participant
	nextID        int64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		entries:       make(map[string]*model.RedemptionEntry),
		byParticipant: make(map[string][]*model.RedemptionEntry),
		participants:  make(map[string]*model.Participant),
		nextID:        1,
	}
}

// IsRedeemed 判断收据唯一标识是否已被兑付
func (l *MemoryLedger) IsRedeemed(ctx context.Context, uniqueID string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, exists := l.entries[uniqueID]
	return exists, nil
}

// Record 原子性地写入兑付记录并更新参与者聚合
func (l *MemoryLedger) Record(ctx context.Context, entry *model.RedemptionEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.entries[entry.ReceiptUniqueID]; exists {
		return model.ErrDuplicateReceipt
	}

	stored := *entry
	stored.ID = l.nextID
	l.nextID++

	l.entries[stored.ReceiptUniqueID] = &stored
	l.byParticipant[stored.ParticipantID] = append(l.byParticipant[stored.ParticipantID], &stored)

	participant, ok := l.participants[stored.ParticipantID]
	if !ok {
		participant = &model.Participant{
			ID:           stored.ParticipantID,
			RegisteredAt: stored.RedeemedAt,
		}
		l.participants[stored.ParticipantID] = participant
	}
	participant.TotalScans++
	if stored.Outcome == model.OutcomeWin {
		participant.TotalWins++
	}

	return nil
}

// CountRecentRedemptions 统计参与者在滑动窗口内的兑付次数
func (l *MemoryLedger) CountRecentRedemptions(ctx context.Context, participantID string, window time.Duration) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	count := 0
	for _, entry := range l.byParticipant[participantID] {
		if entry.RedeemedAt.After(cutoff) {
			count++
		}
	}
	return count, nil
}

// StatsFor 返回参与者的聚合统计
func (l *MemoryLedger) StatsFor(ctx context.Context, participantID string) (model.ParticipantStats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	participant, ok := l.participants[participantID]
	if !ok {
		return model.ParticipantStats{}, nil
	}
	return model.ParticipantStats{
		Scans: participant.TotalScans,
		Wins:  participant.TotalWins,
	}, nil
}

// RegisterParticipant 注册参与者，重复注册幂等
func (l *MemoryLedger) RegisterParticipant(ctx context.Context, participantID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.participants[participantID]; ok {
		return nil
	}
	l.participants[participantID] = &model.Participant{
		ID:           participantID,
		RegisteredAt: time.Now(),
	}
	return nil
}

// GetParticipant 获取参与者
func (l *MemoryLedger) GetParticipant(ctx context.Context, participantID string) (*model.Participant, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	participant, ok := l.participants[participantID]
	if !ok {
		return nil, model.ErrParticipantNotFound
	}
	copied := *participant
	return &copied, nil
}

// Standings 返回自since以来各参与者的扫码/中奖计数
func (l *MemoryLedger) Standings(ctx context.Context, since time.Time) ([]*model.LeaderboardEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	standings := make([]*model.LeaderboardEntry, 0, len(l.byParticipant))
	for participantID, entries := range l.byParticipant {
		scans, wins := 0, 0
		for _, entry := range entries {
			if !since.IsZero() && entry.RedeemedAt.Before(since) {
				continue
			}
			scans++
			if entry.Outcome == model.OutcomeWin {
				wins++
			}
		}
		if scans == 0 {
			continue
		}
		standings = append(standings, &model.LeaderboardEntry{
			ParticipantID: participantID,
			Scans:         scans,
			Wins:          wins,
		})
	}

	// map遍历无序，先按参与者标识排序保证结果确定
	sort.Slice(standings, func(i, j int) bool {
		return standings[i].ParticipantID < standings[j].ParticipantID
	})
	return standings, nil
}

// WinEntries 返回全部中奖记录，按兑付时间倒序
func (l *MemoryLedger) WinEntries(ctx context.Context) ([]*model.RedemptionEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var wins []*model.RedemptionEntry
	for _, entry := range l.entries {
		if entry.Outcome == model.OutcomeWin {
			copied := *entry
			wins = append(wins, &copied)
		}
	}

	sort.Slice(wins, func(i, j int) bool {
		if wins[i].RedeemedAt.Equal(wins[j].RedeemedAt) {
			return wins[i].ID > wins[j].ID
		}
		return wins[i].RedeemedAt.After(wins[j].RedeemedAt)
	})
	return wins, nil
}

// Reset 清空全部兑付记录与参与者
func (l *MemoryLedger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = make(map[string]*model.RedemptionEntry)
	l.byParticipant = make(map[string][]*model.RedemptionEntry)
	l.participants = make(map[string]*model.Participant)
	l.nextID = 1
	return nil
}

// Close 进程内实现无需释放资源
func (l *MemoryLedger) Close() error {
	return nil
}
