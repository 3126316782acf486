package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/zonecrest/lottery/internal/commitment"
	"github.com/zonecrest/lottery/internal/model"
)

// 掩码保留的前后缀长度
const (
	maskKeepPrefix = 3
	maskKeepSuffix = 3
)

// AuditLog 返回公开审计日志：仅中奖记录，按兑付时间倒序
// 每条记录携带第三方重算承诺哈希所需的校验数据
func (s *LotteryService) AuditLog(ctx context.Context) ([]*model.AuditEntry, *model.AuditSummary, error) {
	wins, err := s.ledger.WinEntries(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("查询中奖记录失败: %w", err)
	}

	entries := make([]*model.AuditEntry, 0, len(wins))
	var totalPayout float64
	for _, win := range wins {
		entries = append(entries, &model.AuditEntry{
			RedeemedAt:          win.RedeemedAt,
			MaskedParticipantID: MaskParticipantID(win.ParticipantID),
			PrizeTier:           win.PrizeTier,
			TransactionHash:     win.TransactionHash,
			Verification: model.VerificationData{
				ReceiptHashFragment: commitment.ReceiptFragment(win.ReceiptUniqueID),
				RandomSeed:          win.RandomSeed,
				CommitmentHash:      win.TransactionHash,
			},
		})
		totalPayout += win.PrizeValue
	}

	summary := &model.AuditSummary{
		TotalWinners: len(wins),
		TotalPayout:  fmt.Sprintf("%.2f %s", totalPayout, s.currency),
	}

	return entries, summary, nil
}

// MaskParticipantID 掩码参与者标识：只保留前3位和后3位，中间以星号替换
func MaskParticipantID(participantID string) string {
	if len(participantID) <= maskKeepPrefix+maskKeepSuffix {
		return strings.Repeat("*", len(participantID))
	}

	masked := len(participantID) - maskKeepPrefix - maskKeepSuffix
	return participantID[:maskKeepPrefix] +
		strings.Repeat("*", masked) +
		participantID[len(participantID)-maskKeepSuffix:]
}
