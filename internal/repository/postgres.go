// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/salonhub/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrConfigNotFound возвращается, если для филиала не сохранены настройки скидок.
var (
	ErrConfigNotFound = errors.New("reward usage config not found")
	// ErrNotificationNotFound возвращается, если уведомление не найдено.
	ErrNotificationNotFound = errors.New("notification not found")
)

var retryDelays = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(retryDelays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(retryDelays) {
			break
		}

		timer := time.NewTimer(retryDelays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// GetRewardUsageConfig возвращает настройки применения скидок филиала.
func (r *PostgresRepository) GetRewardUsageConfig(ctx context.Context, locationID string) (*model.RewardUsageConfig, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT strategy, allowed_combinations, max_kinds_per_booking, enabled_kinds, updated_at
		 FROM reward_usage_configs
		 WHERE location_id = $1`,
		locationID,
	)

	var (
		strategy     string
		combinations []byte
		enabled      []string
	)
	cfg := model.RewardUsageConfig{LocationID: locationID}

	err := row.Scan(&strategy, &combinations, &cfg.MaxKindsPerBooking, &enabled, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("get reward usage config: %w", err)
	}

	cfg.Strategy = model.Strategy(strategy)
	if err := json.Unmarshal(combinations, &cfg.AllowedCombinations); err != nil {
		return nil, fmt.Errorf("decode allowed combinations: %w", err)
	}

	cfg.EnabledKinds = make(map[model.DiscountKind]bool, len(enabled))
	for _, k := range enabled {
		cfg.EnabledKinds[model.DiscountKind(k)] = true
	}

	return &cfg, nil
}

// SaveRewardUsageConfig сохраняет настройки филиала; последняя запись побеждает.
func (r *PostgresRepository) SaveRewardUsageConfig(ctx context.Context, cfg model.RewardUsageConfig) error {
	combinations, err := json.Marshal(cfg.AllowedCombinations)
	if err != nil {
		return fmt.Errorf("encode allowed combinations: %w", err)
	}

	enabled := make([]string, 0, len(cfg.EnabledKinds))
	for _, k := range model.AllDiscountKinds {
		if cfg.EnabledKinds[k] {
			enabled = append(enabled, string(k))
		}
	}

	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO reward_usage_configs
			     (location_id, strategy, allowed_combinations, max_kinds_per_booking, enabled_kinds, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (location_id) DO UPDATE SET
			     strategy = EXCLUDED.strategy,
			     allowed_combinations = EXCLUDED.allowed_combinations,
			     max_kinds_per_booking = EXCLUDED.max_kinds_per_booking,
			     enabled_kinds = EXCLUDED.enabled_kinds,
			     updated_at = EXCLUDED.updated_at`,
			cfg.LocationID, string(cfg.Strategy), combinations, cfg.MaxKindsPerBooking, enabled, cfg.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("save reward usage config: %w", err)
		}
		return nil
	})
}

// ReplaceShifts в одной транзакции удаляет смены сотрудника, начинающиеся в [from, to),
// и вставляет новые. Параллельные замены для одного сотрудника сериализуются advisory-блокировкой.
func (r *PostgresRepository) ReplaceShifts(ctx context.Context, employeeID string, from, to time.Time, shifts []model.GeneratedShift) error {
	return r.withRetry(ctx, func() error {
		return r.replaceShifts(ctx, employeeID, from, to, shifts)
	})
}

func (r *PostgresRepository) replaceShifts(ctx context.Context, employeeID string, from, to time.Time, shifts []model.GeneratedShift) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, employeeID); err != nil {
		return fmt.Errorf("lock employee shifts: %w", err)
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM shifts WHERE employee_id = $1 AND start_time >= $2 AND start_time < $3`,
		employeeID, from, to,
	)
	if err != nil {
		return fmt.Errorf("delete shifts: %w", err)
	}

	if len(shifts) > 0 {
		rows := make([][]any, 0, len(shifts))
		for _, s := range shifts {
			rows = append(rows, []any{s.ID, s.EmployeeID, s.StartTime, s.EndTime, string(s.Status), s.GenerationID})
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"shifts"},
			[]string{"id", "employee_id", "start_time", "end_time", "status", "generation_id"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("insert shifts: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// ListShifts возвращает смены сотрудника, начинающиеся в [from, to), по возрастанию времени начала.
func (r *PostgresRepository) ListShifts(ctx context.Context, employeeID string, from, to time.Time) ([]model.GeneratedShift, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, employee_id, start_time, end_time, status, generation_id
		 FROM shifts
		 WHERE employee_id = $1 AND start_time >= $2 AND start_time < $3
		 ORDER BY start_time, end_time`,
		employeeID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("select shifts: %w", err)
	}
	defer rows.Close()

	var res []model.GeneratedShift
	for rows.Next() {
		var (
			s      model.GeneratedShift
			status string
		)
		if err := rows.Scan(&s.ID, &s.EmployeeID, &s.StartTime, &s.EndTime, &status, &s.GenerationID); err != nil {
			return nil, fmt.Errorf("scan shift: %w", err)
		}
		s.Status = model.ShiftStatus(status)
		res = append(res, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// EnqueueNotification ставит уведомление в очередь на отправку.
func (r *PostgresRepository) EnqueueNotification(ctx context.Context, n model.Notification) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notifications (id, phone_number, body, status) VALUES ($1, $2, $3, $4)`,
		n.ID, n.PhoneNumber, n.Body, string(model.NotificationStatusPending),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// GetPendingNotifications возвращает уведомления, ожидающие отправки, в порядке постановки в очередь.
func (r *PostgresRepository) GetPendingNotifications(ctx context.Context, limit int) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, phone_number, body, status, attempts, last_error, created_at
		 FROM notifications
		 WHERE status = $1
		 ORDER BY created_at
		 LIMIT $2`,
		string(model.NotificationStatusPending),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending notifications: %w", err)
	}
	defer rows.Close()

	var res []model.Notification
	for rows.Next() {
		var (
			n      model.Notification
			status string
		)
		if err := rows.Scan(&n.ID, &n.PhoneNumber, &n.Body, &status, &n.Attempts, &n.LastError, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Status = model.NotificationStatus(status)
		res = append(res, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// MarkNotificationSent отмечает уведомление отправленным и сохраняет идентификатор сообщения.
func (r *PostgresRepository) MarkNotificationSent(ctx context.Context, id uuid.UUID, messageID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications
		 SET status = $2, message_id = $3, attempts = attempts + 1, sent_at = now()
		 WHERE id = $1`,
		id, string(model.NotificationStatusSent), messageID,
	)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkNotificationFailed фиксирует неудачную попытку отправки.
// При giveUp уведомление больше не выбирается для отправки.
func (r *PostgresRepository) MarkNotificationFailed(ctx context.Context, id uuid.UUID, reason string, giveUp bool) error {
	status := model.NotificationStatusPending
	if giveUp {
		status = model.NotificationStatusFailed
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications
		 SET status = $2, last_error = $3, attempts = attempts + 1
		 WHERE id = $1`,
		id, string(status), reason,
	)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
