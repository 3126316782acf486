package model

import (
	"time"
)

// 收据码变体
const (
	ReceiptVariantToken = "TOKEN" // 简单结构化收据码
	ReceiptVariantURL   = "URL"   // 带签名的校验URL
)

// 抽奖结果
const (
	OutcomeWin  = "WIN"
	OutcomeLose = "LOSE"
)

// 排行榜时间范围
const (
	PeriodAllTime = "all"
	PeriodWeekly  = "weekly"
)

// 徽章等级，按扫码次数阶梯判定
const (
	BadgeGold   = "GOLD"
	BadgeSilver = "SILVER"
	BadgeBronze = "BRONZE"
	BadgeNone   = ""
)

// ParsedReceipt 收据码解析结果
type ParsedReceipt struct {
	Valid    bool   `json:"valid"`
	Variant  string `json:"variant,omitempty"`
	UniqueID string `json:"uniqueId,omitempty"`

	// URL变体携带的元数据
	DeviceID  string `json:"deviceId,omitempty"`  // sdc参数
	Data      string `json:"data,omitempty"`      // 内部数据块，不解析
	Timestamp string `json:"ts,omitempty"`        // 紧凑时间戳
	Signature string `json:"signature,omitempty"` // 签名，本服务不校验
}

// Participant 参与者，以手机号标识
type Participant struct {
	ID           string    `json:"id"`
	TotalScans   int       `json:"totalScans"`
	TotalWins    int       `json:"totalWins"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// RedemptionEntry 一次成功兑付的不可变记录，每个收据唯一标识全局至多一条
type RedemptionEntry struct {
	ID               int64     `json:"id"`
	ReceiptUniqueID  string    `json:"receiptUniqueId"`
	ParticipantID    string    `json:"participantId"`
	RedeemedAt       time.Time `json:"redeemedAt"`
	Outcome          string    `json:"outcome"`
	PrizeTier        string    `json:"prizeTier,omitempty"`  // 仅中奖时存在
	PrizeValue       float64   `json:"prizeValue,omitempty"` // 仅中奖时存在
	TransactionHash  string    `json:"transactionHash"`
	RandomSeed       string    `json:"randomSeed"`
}

// ParticipantStats 参与者聚合统计
type ParticipantStats struct {
	Scans int `json:"scans"`
	Wins  int `json:"wins"`
}

// RedemptionResult 兑付响应
type RedemptionResult struct {
	Outcome         string    `json:"outcome"`
	PrizeTier       string    `json:"prizeTier,omitempty"`
	PrizeValue      float64   `json:"prizeValue,omitempty"`
	TransactionHash string    `json:"transactionHash"`
	TotalScans      int       `json:"totalScans"`
	TotalWins       int       `json:"totalWins"`
	RedeemedAt      time.Time `json:"redeemedAt"`
}

// LeaderboardEntry 排行榜条目
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	ParticipantID string `json:"participantId"`
	Scans         int    `json:"scans"`
	Wins          int    `json:"wins"`
	Badge         string `json:"badge,omitempty"`
}

// AuditEntry 公开审计日志条目，仅包含中奖记录
type AuditEntry struct {
	RedeemedAt          time.Time         `json:"redeemedAt"`
	MaskedParticipantID string            `json:"maskedParticipantId"`
	PrizeTier           string            `json:"prizeTier"`
	TransactionHash     string            `json:"transactionHash"`
	Verification        VerificationData  `json:"verification"`
}

// VerificationData 第三方重新计算承诺哈希所需的数据
type VerificationData struct {
	ReceiptHashFragment string `json:"receiptHashFragment"`
	RandomSeed          string `json:"randomSeed"`
	CommitmentHash      string `json:"commitmentHash"`
}

// AuditSummary 审计汇总
type AuditSummary struct {
	TotalWinners int    `json:"totalWinners"`
	TotalPayout  string `json:"totalPayout"` // 带货币单位的格式化金额
}

// RedemptionEvent Kafka兑付事件，驱动读模型缓存维护
type RedemptionEvent struct {
	ReceiptUniqueID string    `json:"receiptUniqueId"`
	ParticipantID   string    `json:"participantId"`
	Outcome         string    `json:"outcome"`
	PrizeTier       string    `json:"prizeTier,omitempty"`
	RedeemedAt      time.Time `json:"redeemedAt"`
}
