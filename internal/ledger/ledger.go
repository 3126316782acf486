package ledger

import (
	"context"
	"time"

	"github.com/zonecrest/lottery/internal/model"
)

// Ledger 兑付台账，全部状态的唯一属主；其他组件只通过该查询接口读取
// Record是提交点：同一收据唯一标识的并发兑付至多一次成功
type Ledger interface {
	// IsRedeemed 判断收据唯一标识是否已被兑付
	IsRedeemed(ctx context.Context, uniqueID string) (bool, error)

	// Record 原子性地写入兑付记录并更新参与者聚合；
	// 唯一标识已存在时返回model.ErrDuplicateReceipt
	Record(ctx context.Context, entry *model.RedemptionEntry) error

	// CountRecentRedemptions 统计参与者在滑动窗口内的兑付次数，用于限流
	CountRecentRedemptions(ctx context.Context, participantID string, window time.Duration) (int, error)

	// StatsFor 返回参与者的聚合统计，基于维护的聚合值而非全量扫描
	StatsFor(ctx context.Context, participantID string) (model.ParticipantStats, error)

	// RegisterParticipant 注册参与者，重复注册幂等
	RegisterParticipant(ctx context.Context, participantID string) error

	// GetParticipant 获取参与者，不存在时返回model.ErrParticipantNotFound
	GetParticipant(ctx context.Context, participantID string) (*model.Participant, error)

	// Standings 返回自since以来各参与者的扫码/中奖计数；since为零值时统计全部
	Standings(ctx context.Context, since time.Time) ([]*model.LeaderboardEntry, error)

	// WinEntries 返回全部中奖记录，按兑付时间倒序
	WinEntries(ctx context.Context) ([]*model.RedemptionEntry, error)

	// Reset 清空全部兑付记录与参与者，仅供管理端使用，不可恢复
	Reset(ctx context.Context) error

	// Close 释放底层资源
	Close() error
}
