package commitment

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"time"
)

// Hash 计算兑付承诺哈希：对四项输入的规范化编码做sha256摘要
// 每个字段带长度前缀，字段内容包含分隔符时编码也不会产生歧义
// 任何知道这四项输入的第三方都能重新计算并核对结果未被篡改
func Hash(receiptUniqueID, participantID string, ts time.Time, seed string) string {
	fields := []string{
		receiptUniqueID,
		participantID,
		ts.UTC().Format(time.RFC3339),
		seed,
	}

	h := sha256.New()
	for _, field := range fields {
		fmt.Fprintf(h, "%d:%s|", len(field), field)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ReceiptFragment 返回收据唯一标识哈希的前缀片段，供审计日志公开而不暴露完整标识
func ReceiptFragment(receiptUniqueID string) string {
	digest := sha256.Sum256([]byte(receiptUniqueID))
	return hex.EncodeToString(digest[:])[:12]
}

// NewSeed 生成16字节随机种子的十六进制表示
func NewSeed() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		log.Printf("生成随机种子失败: %v", err)
		// 使用时间戳作为备选
		return fmt.Sprintf("%032x", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
