package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/zonecrest/lottery/config"
	"github.com/zonecrest/lottery/internal/api/graph"
	"github.com/zonecrest/lottery/internal/draw"
	intkafka "github.com/zonecrest/lottery/internal/kafka"
	"github.com/zonecrest/lottery/internal/ledger"
	"github.com/zonecrest/lottery/internal/lock"
	"github.com/zonecrest/lottery/internal/receipt"
	"github.com/zonecrest/lottery/internal/repository"
	"github.com/zonecrest/lottery/internal/service"
)

var (
	configPath = flag.String("config", "config/config.yaml", "配置文件路径")
	instanceID = flag.Int("instance", 1, "实例ID，用于区分多个实例")
)

func main() {
	// 解析命令行参数
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	log.Printf("配置加载成功，存储后端: %s，当前实例ID: %d", cfg.Storage.Backend, *instanceID)

	// 按配置选定存储后端，启动后不再切换
	var (
		ledgerStore ledger.Ledger
		redisRepo   *repository.RedisRepository
		receiptLock lock.Lock
		producer    *intkafka.Producer
		consumer    *intkafka.Consumer
	)

	switch cfg.Storage.Backend {
	case "memory":
		// 单实例演示模式：进程内台账与进程内锁，不依赖外部组件
		ledgerStore = ledger.NewMemoryLedger()
		receiptLock = lock.NewLocalLock()
		log.Printf("memory台账初始化成功，使用进程内锁")

	case "mysql":
		mysqlLedger, err := repository.NewMySQLLedger()
		if err != nil {
			log.Fatalf("初始化MySQL台账失败: %v", err)
		}
		ledgerStore = mysqlLedger
		log.Printf("MySQL台账初始化成功")

		// 创建Redis连接（读模型缓存与限流计数）
		redisRepo, err = repository.NewRedisRepository()
		if err != nil {
			log.Fatalf("初始化Redis仓库失败: %v", err)
		}
		log.Printf("Redis仓库初始化成功")

		// 创建分布式锁，优先ETCD，不可用时退回Redlock
		etcdLock, err := lock.NewETCDLock()
		if err != nil {
			log.Printf("初始化ETCD分布式锁失败: %v，退回Redlock", err)
			redLock, err := lock.NewRedLock()
			if err != nil {
				log.Fatalf("初始化Redlock失败: %v", err)
			}
			receiptLock = redLock
		} else {
			receiptLock = etcdLock
		}
		log.Printf("分布式锁初始化成功")

		// 创建Kafka生产者与消费者（兑付事件驱动读模型缓存失效）
		producer, err = intkafka.NewProducer()
		if err != nil {
			log.Fatalf("初始化Kafka生产者失败: %v", err)
		}
		log.Printf("Kafka生产者初始化成功")

		consumer, err = intkafka.NewConsumer()
		if err != nil {
			log.Fatalf("初始化Kafka消费者失败: %v", err)
		}
		log.Printf("Kafka消费者初始化成功")

	default:
		log.Fatalf("未知的存储后端: %s (支持 memory 或 mysql)", cfg.Storage.Backend)
	}
	defer ledgerStore.Close()
	defer receiptLock.Close()
	if redisRepo != nil {
		defer redisRepo.Close()
	}
	if producer != nil {
		defer producer.Close()
	}
	if consumer != nil {
		defer consumer.Stop()
	}

	// 创建收据解析器
	parser, err := receipt.NewParser(cfg.Receipt.TokenPattern, cfg.Receipt.URLPrefix)
	if err != nil {
		log.Fatalf("初始化收据解析器失败: %v", err)
	}

	// 创建开奖引擎，随机源使用crypto/rand
	engine, err := draw.NewEngine(cfg.Lottery.WinPercentage, cfg.Lottery.Prizes, draw.NewCryptoSource())
	if err != nil {
		log.Fatalf("初始化开奖引擎失败: %v", err)
	}
	log.Printf("开奖引擎初始化成功，中奖概率: %.1f%%", cfg.Lottery.WinPercentage)

	// 创建兑付服务；memory模式下cache保持nil接口，服务据此跳过缓存路径
	var cache service.ReadModelCache
	if redisRepo != nil {
		cache = redisRepo
	}
	lotteryService, err := service.NewLotteryService(ledgerStore, cache, receiptLock, parser, engine, producer)
	if err != nil {
		log.Fatalf("初始化兑付服务失败: %v", err)
	}
	log.Printf("兑付服务初始化成功")

	// 启动Kafka消费者
	if consumer != nil {
		consumer.StartConsuming(lotteryService.ProcessRedemptionEvent)
		log.Printf("Kafka消费者已启动")
	}

	// 创建GraphQL服务
	graphqlServer := graph.NewGraphQLServer(lotteryService)
	log.Printf("GraphQL服务初始化成功")

	// 计算端口，支持多实例
	serverPort := cfg.Server.Port + *instanceID - 1

	// 启动HTTP服务器(异步)
	go func() {
		if err := graphqlServer.Start(serverPort); err != nil {
			log.Fatalf("启动GraphQL服务器失败: %v", err)
		}
	}()

	log.Printf("VAT扫码抽奖系统 (实例 %d) 已启动，服务地址: http://localhost:%d", *instanceID, serverPort)

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("正在关闭服务...")
}
