package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/zonecrest/lottery/config"
	"github.com/zonecrest/lottery/internal/model"
)

const (
	// Redis键前缀
	StatsKey       = "lottery:stats:"
	LeaderboardKey = "lottery:leaderboard:"
	RateKey        = "lottery:rate:"

	// 缓存有效期
	StatsCacheTTL       = time.Hour
	LeaderboardCacheTTL = 30 * time.Second

	// Lua脚本
	RateCountScript = `
		-- 计数加一
		local count = redis.call('INCR', KEYS[1])

		-- 首次计数时设置窗口过期时间
		if count == 1 then
			redis.call('PEXPIRE', KEYS[1], ARGV[1])
		end

		-- 返回当前窗口内的计数
		return count
	`
)

// RedisRepository 读模型缓存与限流快速通道
// 限流的最终裁决仍由台账计数做出，这里只提供廉价的前置拦截
type RedisRepository struct {
	client       *redis.Client
	ctx          context.Context
	scriptHashes map[string]string // 存储脚本SHA1哈希值
}

func NewRedisRepository() (*RedisRepository, error) {
	ctx := context.Background()

	// 创建Redis客户端（普通客户端，用于数据存储）
	client := redis.NewClient(&redis.Options{
		Addr:         config.AppConfig.Redis.DataAddress,
		Password:     config.AppConfig.Redis.Password,
		DB:           config.AppConfig.Redis.DB,
		PoolSize:     config.AppConfig.Redis.PoolSize,
		MaxRetries:   config.AppConfig.Redis.MaxRetries,
		DialTimeout:  config.AppConfig.Redis.Timeout,
		ReadTimeout:  config.AppConfig.Redis.Timeout,
		WriteTimeout: config.AppConfig.Redis.Timeout,
	})

	// 测试连接
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis数据节点连接测试失败: %w", err)
	}

	repo := &RedisRepository{
		client:       client,
		ctx:          ctx,
		scriptHashes: make(map[string]string),
	}

	// 预加载Lua脚本
	if err := repo.preloadScripts(); err != nil {
		return nil, fmt.Errorf("预加载Lua脚本失败: %w", err)
	}

	return repo, nil
}

// preloadScripts 预加载所有Lua脚本
func (r *RedisRepository) preloadScripts() error {
	sha1, err := r.client.ScriptLoad(r.ctx, RateCountScript).Result()
	if err != nil {
		return fmt.Errorf("加载限流计数脚本失败: %w", err)
	}
	r.scriptHashes["rateCount"] = sha1

	return nil
}

// GetParticipantStats 从缓存获取参与者聚合统计
func (r *RedisRepository) GetParticipantStats(participantID string) (*model.ParticipantStats, bool, error) {
	key := StatsKey + participantID
	data, err := r.client.Get(r.ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil // 缓存未命中
		}
		return nil, false, fmt.Errorf("获取参与者统计缓存失败: %w", err)
	}

	var stats model.ParticipantStats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		return nil, false, fmt.Errorf("解析参与者统计缓存失败: %w", err)
	}

	return &stats, true, nil
}

// SetParticipantStats 设置参与者聚合统计缓存
func (r *RedisRepository) SetParticipantStats(participantID string, stats *model.ParticipantStats) error {
	key := StatsKey + participantID
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("序列化参与者统计失败: %w", err)
	}

	if err := r.client.Set(r.ctx, key, data, StatsCacheTTL).Err(); err != nil {
		return fmt.Errorf("设置参与者统计缓存失败: %w", err)
	}

	return nil
}

// DeleteParticipantStatsCache 删除参与者聚合统计缓存
func (r *RedisRepository) DeleteParticipantStatsCache(participantID string) error {
	key := StatsKey + participantID
	if err := r.client.Del(r.ctx, key).Err(); err != nil {
		return fmt.Errorf("删除参与者统计缓存失败: %w", err)
	}
	return nil
}

// GetLeaderboardCache 从缓存获取排行榜
func (r *RedisRepository) GetLeaderboardCache(period string) ([]*model.LeaderboardEntry, bool, error) {
	key := LeaderboardKey + period
	data, err := r.client.Get(r.ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil // 缓存未命中
		}
		return nil, false, fmt.Errorf("获取排行榜缓存失败: %w", err)
	}

	var entries []*model.LeaderboardEntry
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		return nil, false, fmt.Errorf("解析排行榜缓存失败: %w", err)
	}

	return entries, true, nil
}

// SetLeaderboardCache 设置排行榜缓存
func (r *RedisRepository) SetLeaderboardCache(period string, entries []*model.LeaderboardEntry) error {
	key := LeaderboardKey + period
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("序列化排行榜失败: %w", err)
	}

	if err := r.client.Set(r.ctx, key, data, LeaderboardCacheTTL).Err(); err != nil {
		return fmt.Errorf("设置排行榜缓存失败: %w", err)
	}

	return nil
}

// DeleteLeaderboardCache 删除全部时间范围的排行榜缓存
func (r *RedisRepository) DeleteLeaderboardCache() error {
	keys := []string{
		LeaderboardKey + model.PeriodAllTime,
		LeaderboardKey + model.PeriodWeekly,
	}
	if err := r.client.Del(r.ctx, keys...).Err(); err != nil {
		return fmt.Errorf("删除排行榜缓存失败: %w", err)
	}
	return nil
}

// IncrementRateCount 使用预加载的Lua脚本增加并返回参与者在窗口内的兑付计数
func (r *RedisRepository) IncrementRateCount(participantID string, window time.Duration) (int, error) {
	key := RateKey + participantID

	// 获取预加载脚本的SHA1哈希值
	sha1, ok := r.scriptHashes["rateCount"]
	if !ok {
		return 0, fmt.Errorf("脚本未预加载")
	}

	windowMillis := int(window / time.Millisecond)

	// 尝试使用EVALSHA执行
	result, err := r.client.EvalSha(r.ctx, sha1, []string{key}, windowMillis).Result()
	if err != nil {
		// 如果脚本不存在，重新加载并再次尝试
		if err.Error() == "NOSCRIPT No matching script. Please use EVAL." {
			sha1, err = r.client.ScriptLoad(r.ctx, RateCountScript).Result()
			if err != nil {
				return 0, fmt.Errorf("重新加载限流计数脚本失败: %w", err)
			}
			r.scriptHashes["rateCount"] = sha1

			result, err = r.client.EvalSha(r.ctx, sha1, []string{key}, windowMillis).Result()
			if err != nil {
				return 0, fmt.Errorf("执行限流计数脚本失败: %w", err)
			}
		} else {
			return 0, fmt.Errorf("执行限流计数脚本失败: %w", err)
		}
	}

	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("LUA脚本返回计数类型错误")
	}

	return int(count), nil
}

// DecrementRateCount 回退一次限流计数（兑付最终失败时调用）
func (r *RedisRepository) DecrementRateCount(participantID string) error {
	key := RateKey + participantID
	if err := r.client.Decr(r.ctx, key).Err(); err != nil {
		return fmt.Errorf("回退限流计数失败: %w", err)
	}
	return nil
}

// FlushReadModels 清空全部读模型缓存与限流计数，配合管理端数据重置使用
func (r *RedisRepository) FlushReadModels() error {
	patterns := []string{StatsKey + "*", LeaderboardKey + "*", RateKey + "*"}

	for _, pattern := range patterns {
		keys, err := r.client.Keys(r.ctx, pattern).Result()
		if err != nil {
			return fmt.Errorf("查找缓存键失败: %w", err)
		}
		if len(keys) == 0 {
			continue
		}
		if err := r.client.Del(r.ctx, keys...).Err(); err != nil {
			return fmt.Errorf("删除缓存键失败: %w", err)
		}
	}

	return nil
}

// Close 关闭Redis连接
func (r *RedisRepository) Close() error {
	return r.client.Close()
}
