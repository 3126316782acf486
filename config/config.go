package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	MySQL       MySQLConfig       `mapstructure:"mysql"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	ETCD        ETCDConfig        `mapstructure:"etcd"`
	Lottery     LotteryConfig     `mapstructure:"lottery"`
	Receipt     ReceiptConfig     `mapstructure:"receipt"`
	Participant ParticipantConfig `mapstructure:"participant"`
	GraphQL     GraphQLConfig     `mapstructure:"graphql"`
	Admin       AdminConfig       `mapstructure:"admin"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type StorageConfig struct {
	// Backend 存储后端类型: memory 或 mysql，启动时选定，运行期间不切换
	Backend string `mapstructure:"backend"`
}

type MySQLConfig struct {
	Master       string `mapstructure:"master"`
	Slave        string `mapstructure:"slave"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	// 数据存储Redis
	DataAddress string        `mapstructure:"data_address"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`

	// Redlock使用的Redis节点
	LockAddresses []string `mapstructure:"lock_addresses"`
}

type KafkaConfig struct {
	Brokers   []string `mapstructure:"brokers"`
	Topic     string   `mapstructure:"topic"`
	Partition int      `mapstructure:"partition"`
	GroupID   string   `mapstructure:"group_id"`
}

type ETCDConfig struct {
	Endpoints      []string      `mapstructure:"endpoints"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
}

// PrizeTier 奖项配置，按配置顺序参与累计份额抽取
type PrizeTier struct {
	Label string  `mapstructure:"label"`
	Share float64 `mapstructure:"share"`
	Value float64 `mapstructure:"value"`
}

type LotteryConfig struct {
	WinPercentage   float64       `mapstructure:"win_percentage"`
	Prizes          []PrizeTier   `mapstructure:"prizes"`
	MaxScansPerHour int           `mapstructure:"max_scans_per_hour"`
	RateWindow      time.Duration `mapstructure:"rate_window"`
	Currency        string        `mapstructure:"currency"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
	LockRetryCount  int           `mapstructure:"lock_retry_count"`
}

type ReceiptConfig struct {
	// TokenPattern 简单收据码的正则表达式（服务端配置，不接受客户端指定）
	TokenPattern string `mapstructure:"token_pattern"`
	// URLPrefix 签名校验URL的前缀
	URLPrefix string `mapstructure:"url_prefix"`
}

type ParticipantConfig struct {
	PhonePattern string `mapstructure:"phone_pattern"`
}

type GraphQLConfig struct {
	Path string `mapstructure:"path"`
}

type AdminConfig struct {
	// ResetToken 管理端清空数据所需的令牌
	ResetToken string `mapstructure:"reset_token"`
}

var AppConfig Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := validate(&AppConfig); err != nil {
		return nil, err
	}

	return &AppConfig, nil
}

// validate 校验抽奖相关配置
func validate(cfg *Config) error {
	if cfg.Lottery.WinPercentage < 0 || cfg.Lottery.WinPercentage > 100 {
		return fmt.Errorf("中奖概率必须在0到100之间，当前: %v", cfg.Lottery.WinPercentage)
	}

	if len(cfg.Lottery.Prizes) == 0 {
		return fmt.Errorf("奖项配置不能为空")
	}

	var totalShare float64
	for _, prize := range cfg.Lottery.Prizes {
		if prize.Label == "" {
			return fmt.Errorf("奖项名称不能为空")
		}
		if prize.Share < 0 {
			return fmt.Errorf("奖项 %s 的份额不能为负数", prize.Label)
		}
		totalShare += prize.Share
	}
	if totalShare != 100 {
		return fmt.Errorf("奖项份额之和必须为100，当前: %v", totalShare)
	}

	if cfg.Lottery.MaxScansPerHour < 1 {
		return fmt.Errorf("每小时最大扫码次数必须大于等于1，当前: %d", cfg.Lottery.MaxScansPerHour)
	}

	if cfg.Lottery.RateWindow <= 0 {
		cfg.Lottery.RateWindow = time.Hour
	}

	return nil
}
