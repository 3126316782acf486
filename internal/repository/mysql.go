package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/zonecrest/lottery/config"
	"github.com/zonecrest/lottery/internal/model"
)

// mysqlDuplicateEntry MySQL唯一键冲突错误码
const mysqlDuplicateEntry = 1062

// MySQLLedger 基于MySQL的台账实现
// redemption_entries表的receipt_unique_id唯一键是去重的最终防线：
// 并发写入同一收据时数据库保证恰好一条插入成功
type MySQLLedger struct {
	masterDB *sql.DB
	slaveDB  *sql.DB
}

func NewMySQLLedger() (*MySQLLedger, error) {
	masterDB, err := sql.Open("mysql", config.AppConfig.MySQL.Master)
	if err != nil {
		return nil, fmt.Errorf("连接主数据库失败: %w", err)
	}

	masterDB.SetMaxOpenConns(config.AppConfig.MySQL.MaxOpenConns)
	masterDB.SetMaxIdleConns(config.AppConfig.MySQL.MaxIdleConns)
	masterDB.SetConnMaxLifetime(time.Hour)

	if err = masterDB.Ping(); err != nil {
		return nil, fmt.Errorf("主数据库连接测试失败: %w", err)
	}

	slaveDB, err := sql.Open("mysql", config.AppConfig.MySQL.Slave)
	if err != nil {
		return nil, fmt.Errorf("连接从数据库失败: %w", err)
	}

	slaveDB.SetMaxOpenConns(config.AppConfig.MySQL.MaxOpenConns)
	slaveDB.SetMaxIdleConns(config.AppConfig.MySQL.MaxIdleConns)
	slaveDB.SetConnMaxLifetime(time.Hour)

	if err = slaveDB.Ping(); err != nil {
		log.Printf("从数据库连接测试失败: %v，将使用主数据库代替", err)
		slaveDB = masterDB
	}

	return &MySQLLedger{
		masterDB: masterDB,
		slaveDB:  slaveDB,
	}, nil
}

// isDuplicateKey 判断是否为唯一键冲突
func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

// IsRedeemed 判断收据唯一标识是否已被兑付
func (r *MySQLLedger) IsRedeemed(ctx context.Context, uniqueID string) (bool, error) {
	// 去重判断读主库，避免主从延迟导致的误判
	query := "SELECT 1 FROM redemption_entries WHERE receipt_unique_id = ?"
	var one int
	err := r.masterDB.QueryRowContext(ctx, query, uniqueID).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("查询收据兑付状态失败: %w", err)
	}
	return true, nil
}

// Record 在一个事务内写入兑付记录并更新参与者聚合
func (r *MySQLLedger) Record(ctx context.Context, entry *model.RedemptionEntry) error {
	tx, err := r.masterDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}

	insertQuery := `INSERT INTO redemption_entries
		(receipt_unique_id, participant_id, redeemed_at, outcome, prize_tier, prize_value, transaction_hash, random_seed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := tx.ExecContext(ctx, insertQuery,
		entry.ReceiptUniqueID,
		entry.ParticipantID,
		entry.RedeemedAt,
		entry.Outcome,
		entry.PrizeTier,
		entry.PrizeValue,
		entry.TransactionHash,
		entry.RandomSeed,
	)
	if err != nil {
		tx.Rollback()
		if isDuplicateKey(err) {
			return fmt.Errorf("收据 %s 已被兑付: %w", entry.ReceiptUniqueID, model.ErrDuplicateReceipt)
		}
		return fmt.Errorf("写入兑付记录失败: %w", err)
	}

	entryID, err := result.LastInsertId()
	if err == nil {
		entry.ID = entryID
	}

	winIncrement := 0
	if entry.Outcome == model.OutcomeWin {
		winIncrement = 1
	}

	upsertQuery := `INSERT INTO participants (id, total_scans, total_wins, registered_at)
		VALUES (?, 1, ?, ?)
		ON DUPLICATE KEY UPDATE
		total_scans = total_scans + 1,
		total_wins = total_wins + VALUES(total_wins)`

	if _, err := tx.ExecContext(ctx, upsertQuery, entry.ParticipantID, winIncrement, entry.RedeemedAt); err != nil {
		tx.Rollback()
		return fmt.Errorf("更新参与者 %s 聚合失败: %w", entry.ParticipantID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}

	return nil
}

// CountRecentRedemptions 统计参与者在滑动窗口内的兑付次数
func (r *MySQLLedger) CountRecentRedemptions(ctx context.Context, participantID string, window time.Duration) (int, error) {
	// 限流判断读主库，保证计数不因主从延迟偏小
	query := "SELECT COUNT(*) FROM redemption_entries WHERE participant_id = ? AND redeemed_at > ?"
	cutoff := time.Now().Add(-window)

	var count int
	if err := r.masterDB.QueryRowContext(ctx, query, participantID, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("统计参与者 %s 近期兑付次数失败: %w", participantID, err)
	}
	return count, nil
}

// StatsFor 返回参与者的聚合统计
func (r *MySQLLedger) StatsFor(ctx context.Context, participantID string) (model.ParticipantStats, error) {
	query := "SELECT total_scans, total_wins FROM participants WHERE id = ?"

	var stats model.ParticipantStats
	err := r.slaveDB.QueryRowContext(ctx, query, participantID).Scan(&stats.Scans, &stats.Wins)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.ParticipantStats{}, nil
		}
		return model.ParticipantStats{}, fmt.Errorf("查询参与者 %s 聚合失败: %w", participantID, err)
	}
	return stats, nil
}

// RegisterParticipant 注册参与者，重复注册幂等
func (r *MySQLLedger) RegisterParticipant(ctx context.Context, participantID string) error {
	query := `INSERT INTO participants (id, total_scans, total_wins, registered_at)
		VALUES (?, 0, 0, ?)
		ON DUPLICATE KEY UPDATE id = id`

	if _, err := r.masterDB.ExecContext(ctx, query, participantID, time.Now()); err != nil {
		return fmt.Errorf("注册参与者 %s 失败: %w", participantID, err)
	}
	return nil
}

// GetParticipant 获取参与者
func (r *MySQLLedger) GetParticipant(ctx context.Context, participantID string) (*model.Participant, error) {
	query := "SELECT id, total_scans, total_wins, registered_at FROM participants WHERE id = ?"

	var participant model.Participant
	err := r.slaveDB.QueryRowContext(ctx, query, participantID).Scan(
		&participant.ID,
		&participant.TotalScans,
		&participant.TotalWins,
		&participant.RegisteredAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("查询参与者 %s 失败: %w", participantID, err)
	}
	return &participant, nil
}

// Standings 返回自since以来各参与者的扫码/中奖计数
func (r *MySQLLedger) Standings(ctx context.Context, since time.Time) ([]*model.LeaderboardEntry, error) {
	query := `SELECT participant_id, COUNT(*), SUM(outcome = 'WIN')
		FROM redemption_entries
		GROUP BY participant_id
		ORDER BY participant_id`
	args := []interface{}{}

	// since为零值时统计全部，否则按时间窗口过滤
	if !since.IsZero() {
		query = `SELECT participant_id, COUNT(*), SUM(outcome = 'WIN')
		FROM redemption_entries
		WHERE redeemed_at >= ?
		GROUP BY participant_id
		ORDER BY participant_id`
		args = append(args, since)
	}

	rows, err := r.slaveDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询参与者排名数据失败: %w", err)
	}
	defer rows.Close()

	var standings []*model.LeaderboardEntry
	for rows.Next() {
		var entry model.LeaderboardEntry
		if err := rows.Scan(&entry.ParticipantID, &entry.Scans, &entry.Wins); err != nil {
			return nil, fmt.Errorf("扫描排名数据失败: %w", err)
		}
		standings = append(standings, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代排名数据失败: %w", err)
	}

	return standings, nil
}

// WinEntries 返回全部中奖记录，按兑付时间倒序
func (r *MySQLLedger) WinEntries(ctx context.Context) ([]*model.RedemptionEntry, error) {
	query := `SELECT id, receipt_unique_id, participant_id, redeemed_at, outcome, prize_tier, prize_value, transaction_hash, random_seed
		FROM redemption_entries
		WHERE outcome = 'WIN'
		ORDER BY redeemed_at DESC, id DESC`

	rows, err := r.slaveDB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("查询中奖记录失败: %w", err)
	}
	defer rows.Close()

	var entries []*model.RedemptionEntry
	for rows.Next() {
		var entry model.RedemptionEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.ReceiptUniqueID,
			&entry.ParticipantID,
			&entry.RedeemedAt,
			&entry.Outcome,
			&entry.PrizeTier,
			&entry.PrizeValue,
			&entry.TransactionHash,
			&entry.RandomSeed,
		); err != nil {
			return nil, fmt.Errorf("扫描中奖记录失败: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代中奖记录失败: %w", err)
	}

	return entries, nil
}

// Reset 清空全部兑付记录与参与者
func (r *MySQLLedger) Reset(ctx context.Context) error {
	tx, err := r.masterDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM redemption_entries"); err != nil {
		tx.Rollback()
		return fmt.Errorf("清空兑付记录失败: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM participants"); err != nil {
		tx.Rollback()
		return fmt.Errorf("清空参与者失败: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}

	log.Printf("管理端已清空全部台账数据")
	return nil
}

// Close 关闭数据库连接
func (r *MySQLLedger) Close() error {
	if r.masterDB != nil {
		r.masterDB.Close()
	}
	if r.slaveDB != nil && r.slaveDB != r.masterDB {
		r.slaveDB.Close()
	}
	return nil
}
