package graph

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
	"github.com/zonecrest/lottery/config"
	"github.com/zonecrest/lottery/internal/model"
	"github.com/zonecrest/lottery/internal/service"
)

// GraphQLServer GraphQL服务器
type GraphQLServer struct {
	schema   *graphql.Schema
	handler  *relay.Handler
	resolver *Resolver
}

// 读取GraphQL Schema定义
const schemaString = `
type RedemptionResult {
  success: Boolean!
  message: String!
  outcome: String!
  prizeTier: String!
  prizeValue: Float!
  transactionHash: String!
  totalScans: Int!
  totalWins: Int!
  redeemedAt: String!
}

type LeaderboardEntry {
  rank: Int!
  participantId: String!
  scans: Int!
  wins: Int!
  badge: String!
}

type VerificationData {
  receiptHashFragment: String!
  randomSeed: String!
  commitmentHash: String!
}

type AuditEntry {
  redeemedAt: String!
  maskedParticipantId: String!
  prizeTier: String!
  transactionHash: String!
  verification: VerificationData!
}

type AuditSummary {
  totalWinners: Int!
  totalPayout: String!
}

type AuditLog {
  entries: [AuditEntry!]!
  summary: AuditSummary!
}

type ParticipantStats {
  participantId: String!
  scans: Int!
  wins: Int!
}

type MutationResponse {
  success: Boolean!
  message: String!
}

type Query {
  # 查询排行榜，period为all或weekly
  getLeaderboard(period: String!): [LeaderboardEntry!]!

  # 查询公开审计日志（仅中奖记录）
  getAuditLog: AuditLog!

  # 查询参与者聚合统计
  getParticipant(phone: String!): ParticipantStats!
}

type Mutation {
  # 注册参与者
  register(phone: String!): MutationResponse!

  # 扫码兑付收据
  submitScan(code: String!, phone: String!): RedemptionResult!

  # 清空全部数据（仅限管理端）
  resetAllData(adminToken: String!): MutationResponse!
}

schema {
  query: Query
  mutation: Mutation
}
`

// 非预期错误统一兜底话术，不暴露内部细节
const internalErrorMessage = "系统繁忙，请稍后重试"

// NewGraphQLServer 创建新的GraphQL服务器
func NewGraphQLServer(lotteryService *service.LotteryService) *GraphQLServer {
	resolver := NewResolver(lotteryService)

	// 解析Schema并创建GraphQL实例
	schema := graphql.MustParseSchema(schemaString, resolver,
		graphql.UseFieldResolvers(),
	)

	handler := &relay.Handler{Schema: schema}

	return &GraphQLServer{
		schema:   schema,
		handler:  handler,
		resolver: resolver,
	}
}

// Start 启动GraphQL服务器
func (s *GraphQLServer) Start(port int) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// 设置GraphQL API端点
	router.POST(config.AppConfig.GraphQL.Path, gin.WrapH(s.handler))

	// 健康检查
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// 设置GraphQL Playground
	router.GET("/", func(c *gin.Context) {
		c.Header("Content-Type", "text/html")
		c.String(200, playgroundHTML)
	})

	// 启动服务器
	addr := fmt.Sprintf(":%d", port)
	log.Printf("GraphQL服务已启动，API端点: %s, Playground: http://localhost%s/",
		config.AppConfig.GraphQL.Path, addr)

	return router.Run(addr)
}

// Resolver GraphQL解析器
type Resolver struct {
	lotteryService *service.LotteryService
}

// NewResolver 创建新的解析器
func NewResolver(lotteryService *service.LotteryService) *Resolver {
	return &Resolver{lotteryService: lotteryService}
}

// GetLeaderboard 查询排行榜
func (r *Resolver) GetLeaderboard(ctx context.Context, args struct{ Period string }) ([]*LeaderboardEntryResolver, error) {
	entries, err := r.lotteryService.Leaderboard(ctx, args.Period)
	if err != nil {
		return nil, err
	}

	resolvers := make([]*LeaderboardEntryResolver, len(entries))
	for i, entry := range entries {
		resolvers[i] = &LeaderboardEntryResolver{entry: entry}
	}

	return resolvers, nil
}

// GetAuditLog 查询公开审计日志
func (r *Resolver) GetAuditLog(ctx context.Context) (*AuditLogResolver, error) {
	entries, summary, err := r.lotteryService.AuditLog(ctx)
	if err != nil {
		return nil, err
	}

	return &AuditLogResolver{entries: entries, summary: summary}, nil
}

// GetParticipant 查询参与者聚合统计
func (r *Resolver) GetParticipant(ctx context.Context, args struct{ Phone string }) (*ParticipantStatsResolver, error) {
	stats, err := r.lotteryService.GetParticipantStats(ctx, args.Phone)
	if err != nil {
		return nil, userMessage(err)
	}

	return &ParticipantStatsResolver{participantID: args.Phone, stats: stats}, nil
}

// Register 注册参与者
func (r *Resolver) Register(ctx context.Context, args struct{ Phone string }) (*MutationResponseResolver, error) {
	if err := r.lotteryService.Register(ctx, args.Phone); err != nil {
		return failedMutation(err), nil
	}

	return &MutationResponseResolver{success: true, message: "注册成功"}, nil
}

// SubmitScan 扫码兑付收据
func (r *Resolver) SubmitScan(ctx context.Context, args struct{ Code, Phone string }) (*RedemptionResultResolver, error) {
	result, err := r.lotteryService.SubmitScan(ctx, args.Code, args.Phone)
	if err != nil {
		message := internalErrorMessage
		if model.IsUserFacing(err) {
			message = fmt.Sprintf("兑付失败: %v", err)
		} else {
			log.Printf("兑付出现非预期错误: %v", err)
		}
		failResult := &model.RedemptionResult{
			RedeemedAt: time.Now(),
		}
		return &RedemptionResultResolver{result: failResult, success: false, message: message}, nil
	}

	message := "很遗憾，未中奖"
	if result.Outcome == model.OutcomeWin {
		message = fmt.Sprintf("恭喜中奖！奖级: %s", result.PrizeTier)
	}

	return &RedemptionResultResolver{result: result, success: true, message: message}, nil
}

// ResetAllData 清空全部数据
func (r *Resolver) ResetAllData(ctx context.Context, args struct{ AdminToken string }) (*MutationResponseResolver, error) {
	if err := r.lotteryService.ResetAllData(ctx, args.AdminToken); err != nil {
		return failedMutation(err), nil
	}

	return &MutationResponseResolver{success: true, message: "全部数据已清空"}, nil
}

// userMessage 将内部错误转换为面向用户的错误，屏蔽非预期错误的细节
func userMessage(err error) error {
	if model.IsUserFacing(err) {
		return err
	}
	log.Printf("查询出现非预期错误: %v", err)
	return fmt.Errorf(internalErrorMessage)
}

// failedMutation 构造失败的变更响应
func failedMutation(err error) *MutationResponseResolver {
	message := internalErrorMessage
	if model.IsUserFacing(err) {
		message = err.Error()
	} else {
		log.Printf("变更出现非预期错误: %v", err)
	}
	return &MutationResponseResolver{success: false, message: message}
}

// RedemptionResultResolver 兑付响应解析器
type RedemptionResultResolver struct {
	result  *model.RedemptionResult
	success bool
	message string
}

func (r *RedemptionResultResolver) Success() bool {
	return r.success
}

func (r *RedemptionResultResolver) Message() string {
	return r.message
}

func (r *RedemptionResultResolver) Outcome() string {
	return r.result.Outcome
}

func (r *RedemptionResultResolver) PrizeTier() string {
	return r.result.PrizeTier
}

func (r *RedemptionResultResolver) PrizeValue() float64 {
	return r.result.PrizeValue
}

func (r *RedemptionResultResolver) TransactionHash() string {
	return r.result.TransactionHash
}

func (r *RedemptionResultResolver) TotalScans() int32 {
	return int32(r.result.TotalScans)
}

func (r *RedemptionResultResolver) TotalWins() int32 {
	return int32(r.result.TotalWins)
}

func (r *RedemptionResultResolver) RedeemedAt() string {
	return r.result.RedeemedAt.Format(time.RFC3339)
}

// LeaderboardEntryResolver 排行榜条目解析器
type LeaderboardEntryResolver struct {
	entry *model.LeaderboardEntry
}

func (r *LeaderboardEntryResolver) Rank() int32 {
	return int32(r.entry.Rank)
}

func (r *LeaderboardEntryResolver) ParticipantId() string {
	return r.entry.ParticipantID
}

func (r *LeaderboardEntryResolver) Scans() int32 {
	return int32(r.entry.Scans)
}

func (r *LeaderboardEntryResolver) Wins() int32 {
	return int32(r.entry.Wins)
}

func (r *LeaderboardEntryResolver) Badge() string {
	return r.entry.Badge
}

// AuditLogResolver 审计日志解析器
type AuditLogResolver struct {
	entries []*model.AuditEntry
	summary *model.AuditSummary
}

func (r *AuditLogResolver) Entries() []*AuditEntryResolver {
	resolvers := make([]*AuditEntryResolver, len(r.entries))
	for i, entry := range r.entries {
		resolvers[i] = &AuditEntryResolver{entry: entry}
	}
	return resolvers
}

func (r *AuditLogResolver) Summary() *AuditSummaryResolver {
	return &AuditSummaryResolver{summary: r.summary}
}

// AuditEntryResolver 审计日志条目解析器
type AuditEntryResolver struct {
	entry *model.AuditEntry
}

func (r *AuditEntryResolver) RedeemedAt() string {
	return r.entry.RedeemedAt.Format(time.RFC3339)
}

func (r *AuditEntryResolver) MaskedParticipantId() string {
	return r.entry.MaskedParticipantID
}

func (r *AuditEntryResolver) PrizeTier() string {
	return r.entry.PrizeTier
}

func (r *AuditEntryResolver) TransactionHash() string {
	return r.entry.TransactionHash
}

func (r *AuditEntryResolver) Verification() *VerificationDataResolver {
	return &VerificationDataResolver{data: r.entry.Verification}
}

// VerificationDataResolver 校验数据解析器
type VerificationDataResolver struct {
	data model.VerificationData
}

func (r *VerificationDataResolver) ReceiptHashFragment() string {
	return r.data.ReceiptHashFragment
}

func (r *VerificationDataResolver) RandomSeed() string {
	return r.data.RandomSeed
}

func (r *VerificationDataResolver) CommitmentHash() string {
	return r.data.CommitmentHash
}

// AuditSummaryResolver 审计汇总解析器
type AuditSummaryResolver struct {
	summary *model.AuditSummary
}

func (r *AuditSummaryResolver) TotalWinners() int32 {
	return int32(r.summary.TotalWinners)
}

func (r *AuditSummaryResolver) TotalPayout() string {
	return r.summary.TotalPayout
}

// ParticipantStatsResolver 参与者统计解析器
type ParticipantStatsResolver struct {
	participantID string
	stats         *model.ParticipantStats
}

func (r *ParticipantStatsResolver) ParticipantId() string {
	return r.participantID
}

func (r *ParticipantStatsResolver) Scans() int32 {
	return int32(r.stats.Scans)
}

func (r *ParticipantStatsResolver) Wins() int32 {
	return int32(r.stats.Wins)
}

// MutationResponseResolver 变更响应解析器
type MutationResponseResolver struct {
	success bool
	message string
}

func (r *MutationResponseResolver) Success() bool {
	return r.success
}

func (r *MutationResponseResolver) Message() string {
	return r.message
}

// playgroundHTML GraphQL Playground HTML
const playgroundHTML = `
<!DOCTYPE html>
<html>
<head>
  <meta charset=utf-8/>
  <meta name="viewport" content="user-scalable=no, initial-scale=1.0, minimum-scale=1.0, maximum-scale=1.0, minimal-ui">
  <title>VAT Lottery GraphQL Playground</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/static/css/index.css" />
  <link rel="shortcut icon" href="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/favicon.png" />
  <script src="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/static/js/middleware.js"></script>
</head>
<body>
  <div id="root">
    <style>
      body {
        background-color: rgb(23, 42, 58);
        font-family: Open Sans, sans-serif;
        height: 90vh;
      }
      #root {
        height: 100%;
        width: 100%;
        display: flex;
        align-items: center;
        justify-content: center;
      }
      .loading {
        font-size: 32px;
        font-weight: 200;
        color: rgba(255, 255, 255, .6);
        margin-left: 20px;
      }
      img {
        width: 78px;
        height: 78px;
      }
      .title {
        font-weight: 400;
      }
    </style>
    <img src='https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/logo.png' alt=''>
    <div class="loading">
      <span class="title">VAT Lottery GraphQL Playground</span>
    </div>
  </div>
  <script>window.addEventListener('load', function (event) {
      GraphQLPlayground.init(document.getElementById('root'), {
        endpoint: '/graphql'
      })
    })</script>
</body>
</html>
`
