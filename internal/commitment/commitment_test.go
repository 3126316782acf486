package commitment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHashDeterministic(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	h1 := Hash("GRA-2024-A1B2-C3D4-E5F6", "0241234567", ts, "deadbeef")
	h2 := Hash("GRA-2024-A1B2-C3D4-E5F6", "0241234567", ts, "deadbeef")

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHashInputSensitivity(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	base := Hash("RCPT-889900", "0241234567", ts, "deadbeef")

	tests := []struct {
		name string
		hash string
	}{
		{"收据标识变化", Hash("RCPT-889901", "0241234567", ts, "deadbeef")},
		{"参与者变化", Hash("RCPT-889900", "0241234568", ts, "deadbeef")},
		{"时间戳变化", Hash("RCPT-889900", "0241234567", ts.Add(time.Second), "deadbeef")},
		{"种子变化", Hash("RCPT-889900", "0241234567", ts, "deadbeee")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, tt.hash)
		})
	}
}

func TestHashFieldBoundaryUnambiguous(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// 字段内容包含分隔符时，不同的输入组合不得折叠为同一编码
	assert.NotEqual(t,
		Hash("RCPT-1|0241234567", "0551111222", ts, "seed"),
		Hash("RCPT-1", "0241234567|0551111222", ts, "seed"),
	)
	assert.NotEqual(t,
		Hash("RCPT-1|", "0241234567", ts, "seed"),
		Hash("RCPT-1", "|0241234567", ts, "seed"),
	)
}

func TestHashTimezoneNormalized(t *testing.T) {
	// 不同时区的同一时刻产生相同摘要
	utc := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	offset := utc.In(time.FixedZone("GMT+8", 8*3600))

	assert.Equal(t,
		Hash("RCPT-1", "0241234567", utc, "seed"),
		Hash("RCPT-1", "0241234567", offset, "seed"),
	)
}

func TestReceiptFragment(t *testing.T) {
	fragment := ReceiptFragment("GRA-2024-A1B2-C3D4-E5F6")

	assert.Len(t, fragment, 12)
	assert.NotContains(t, fragment, "GRA")
	assert.Equal(t, fragment, ReceiptFragment("GRA-2024-A1B2-C3D4-E5F6"))
}

func TestNewSeed(t *testing.T) {
	s1 := NewSeed()
	s2 := NewSeed()

	assert.Len(t, s1, 32)
	assert.NotEqual(t, s1, s2)
}
