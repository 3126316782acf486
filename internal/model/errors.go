package model

import (
	"errors"
)

// 面向用户的预期错误，与内部故障区分；内部故障一律返回通用的重试提示
var (
	// ErrInvalidReceipt 收据码格式错误或无法识别，用户可自行更正
	ErrInvalidReceipt = errors.New("收据码无效或无法识别")

	// ErrDuplicateReceipt 收据已被兑付，终态错误，不可重试
	ErrDuplicateReceipt = errors.New("该收据已参与过抽奖")

	// ErrRateLimited 时间窗口内兑付次数超限，窗口过期后可重试
	ErrRateLimited = errors.New("扫码次数超过限制")

	// ErrInvalidParticipant 参与者标识（手机号）格式错误
	ErrInvalidParticipant = errors.New("手机号格式无效")

	// ErrParticipantNotFound 参与者不存在
	ErrParticipantNotFound = errors.New("参与者不存在")
)

// IsUserFacing 判断错误是否属于面向用户的预期错误分类
func IsUserFacing(err error) bool {
	return errors.Is(err, ErrInvalidReceipt) ||
		errors.Is(err, ErrDuplicateReceipt) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrInvalidParticipant) ||
		errors.Is(err, ErrParticipantNotFound)
}
