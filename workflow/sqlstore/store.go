// Package sqlstore 基于通用 db.IDatabase 的编排存储实现。
// 同一套 SQL 通过方言层的占位符重写兼容 sqlite 与 postgres；
// 乐观锁由 UPDATE ... WHERE version < ? 的受影响行数承担。
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	core "fulflow/data/db"
	"fulflow/data/db/dialect"
	"fulflow/domain"
	"fulflow/errors"
	"fulflow/logging"
	"fulflow/process"
	"fulflow/workflow"
)

// Store 实现 workflow.Store。
// db 可以是连接池，也可以是事务（WithinTx 内部的视图）。
type Store struct {
	db      core.IDatabase
	dialect dialect.Dialect
	inTx    bool
	logger  logging.Logger
}

// New 创建 SQL 存储（方言自动从连接推断）
func New(db core.IDatabase) *Store {
	return &Store{
		db:      db,
		dialect: dialect.FromDatabase(db),
		logger:  logging.GetLogger().WithFields(logging.String("component", "workflow.sqlstore")),
	}
}

// Init 建表（幂等）。三张表共用审计列；附件键序列化为 JSON 文本。
func (s *Store) Init(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS fulfillment_processes (
			id               TEXT PRIMARY KEY,
			code             TEXT NOT NULL,
			type             TEXT NOT NULL,
			stage            TEXT NOT NULL,
			active_category  TEXT NOT NULL,
			customer_account TEXT NOT NULL,
			sales_order_id   TEXT NOT NULL DEFAULT '',
			confirmed_at     TIMESTAMP,
			completed_at     TIMESTAMP,
			cancelled_at     TIMESTAMP,
			version          BIGINT NOT NULL,
			created_at       TIMESTAMP NOT NULL,
			created_by       TEXT NOT NULL,
			updated_at       TIMESTAMP NOT NULL,
			updated_by       TEXT NOT NULL,
			deleted_at       TIMESTAMP,
			deleted_by       TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS fulfillment_children (
			id              TEXT PRIMARY KEY,
			code            TEXT NOT NULL,
			process_id      TEXT NOT NULL,
			category        TEXT NOT NULL,
			status          TEXT NOT NULL,
			name            TEXT NOT NULL DEFAULT '',
			attachment_keys TEXT NOT NULL DEFAULT '[]',
			version         BIGINT NOT NULL,
			created_at      TIMESTAMP NOT NULL,
			created_by      TEXT NOT NULL,
			updated_at      TIMESTAMP NOT NULL,
			updated_by      TEXT NOT NULL,
			deleted_at      TIMESTAMP,
			deleted_by      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_children_process_category
			ON fulfillment_children (process_id, category)`,
		`CREATE TABLE IF NOT EXISTS fulfillment_line_items (
			id         TEXT PRIMARY KEY,
			parent_id  TEXT NOT NULL,
			category   TEXT NOT NULL,
			item_code  TEXT NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			quantity   DOUBLE PRECISION NOT NULL,
			unit       TEXT NOT NULL DEFAULT '',
			version    BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			created_by TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			updated_by TEXT NOT NULL,
			deleted_at TIMESTAMP,
			deleted_by TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_line_items_parent
			ON fulfillment_line_items (parent_id)`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return errors.WrapError(err, errors.ErrCodeDatabase, "初始化编排表失败")
		}
	}
	return nil
}

// WithinTx 在单个数据库事务内执行 fn
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx workflow.Store) error) error {
	if s.inTx {
		return errors.NewError(errors.ErrCodeDatabase, "不支持嵌套事务")
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeDatabase, "开始事务失败")
	}
	txStore := &Store{db: tx, dialect: s.dialect, inTx: true, logger: s.logger}
	if err := fn(ctx, txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn(ctx, "事务回滚失败", logging.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.WrapError(err, errors.ErrCodeDatabase, "提交事务失败")
	}
	return nil
}

const processColumns = `id, code, type, stage, active_category, customer_account, sales_order_id,
	confirmed_at, completed_at, cancelled_at,
	version, created_at, created_by, updated_at, updated_by, deleted_at, deleted_by`

func (s *Store) GetProcess(ctx context.Context, id string) (*process.Process, error) {
	query := s.dialect.Rebind(
		`SELECT ` + processColumns + ` FROM fulfillment_processes WHERE id = ? AND deleted_at IS NULL`)
	row := s.db.QueryRow(ctx, query, id)
	p, err := scanProcess(row)
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFoundError("流程不存在: %s", id)
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDatabase, "查询流程失败")
	}
	return p, nil
}

func (s *Store) CreateProcess(ctx context.Context, p *process.Process) error {
	query := s.dialect.Rebind(`INSERT INTO fulfillment_processes (` + processColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.Exec(ctx, query,
		p.ID, p.Code, string(p.Type), string(p.Stage), string(p.ActiveCategory),
		p.CustomerAccount, p.SalesOrderID,
		nullTime(p.ConfirmedAt), nullTime(p.CompletedAt), nullTime(p.CancelledAt),
		p.Version, p.CreatedAt, p.CreatedBy, p.UpdatedAt, p.UpdatedBy,
		nullTime(p.DeletedAt), nullString(p.DeletedBy))
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return errors.NewError(errors.ErrCodeDuplicate, "流程已存在: "+p.ID)
		}
		return errors.WrapError(err, errors.ErrCodeDatabase, "创建流程失败")
	}
	return nil
}

// SaveProcess 乐观锁写入：入参版本必须领先于存储版本
func (s *Store) SaveProcess(ctx context.Context, p *process.Process) error {
	query := s.dialect.Rebind(`UPDATE fulfillment_processes SET
			code = ?, type = ?, stage = ?, active_category = ?, customer_account = ?, sales_order_id = ?,
			confirmed_at = ?, completed_at = ?, cancelled_at = ?,
			version = ?, updated_at = ?, updated_by = ?, deleted_at = ?, deleted_by = ?
		WHERE id = ? AND version < ?`)
	res, err := s.db.Exec(ctx, query,
		p.Code, string(p.Type), string(p.Stage), string(p.ActiveCategory),
		p.CustomerAccount, p.SalesOrderID,
		nullTime(p.ConfirmedAt), nullTime(p.CompletedAt), nullTime(p.CancelledAt),
		p.Version, p.UpdatedAt, p.UpdatedBy,
		nullTime(p.DeletedAt), nullString(p.DeletedBy),
		p.ID, p.Version)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeDatabase, "保存流程失败")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeDatabase, "保存流程失败")
	}
	if rows == 0 {
		return s.saveConflict(ctx, "fulfillment_processes", p.ID, p.Version)
	}
	return nil
}

// saveConflict 区分"不存在"与"版本冲突"
func (s *Store) saveConflict(ctx context.Context, table, id string, incoming uint64) error {
	var stored uint64
	query := s.dialect.Rebind(`SELECT version FROM ` + table + ` WHERE id = ?`)
	err := s.db.QueryRow(ctx, query, id).Scan(&stored)
	if err == sql.ErrNoRows {
		return domain.NewNotFoundError("记录不存在: %s", id)
	}
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeDatabase, "查询版本失败")
	}
	return domain.NewVersionConflictError(id, incoming, stored)
}

const childColumns = `id, code, process_id, category, status, name, attachment_keys,
	version, created_at, created_by, updated_at, updated_by, deleted_at, deleted_by`

func (s *Store) CreateChild(ctx context.Context, c *process.Child) error {
	keys, err := json.Marshal(c.AttachmentKeys)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeInternal, "序列化附件键失败")
	}
	query := s.dialect.Rebind(`INSERT INTO fulfillment_children (` + childColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.Exec(ctx, query,
		c.ID, c.Code, c.ProcessID, string(c.Category), string(c.Status), c.Name, string(keys),
		c.Version, c.CreatedAt, c.CreatedBy, c.UpdatedAt, c.UpdatedBy,
		nullTime(c.DeletedAt), nullString(c.DeletedBy))
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return errors.NewError(errors.ErrCodeDuplicate, "子单已存在: "+c.ID)
		}
		return errors.WrapError(err, errors.ErrCodeDatabase, "创建子单失败")
	}
	return nil
}

func (s *Store) GetChild(ctx context.Context, id string) (*process.Child, error) {
	query := s.dialect.Rebind(
		`SELECT ` + childColumns + ` FROM fulfillment_children WHERE id = ?`)
	row := s.db.QueryRow(ctx, query, id)
	c, err := scanChild(row)
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFoundError("子单不存在: %s", id)
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDatabase, "查询子单失败")
	}
	return c, nil
}

func (s *Store) ListChildren(ctx context.Context, processID string, filter workflow.ChildFilter) ([]*process.Child, error) {
	query := `SELECT ` + childColumns + ` FROM fulfillment_children
		WHERE process_id = ? AND category = ?`
	if !filter.IncludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY code`

	rows, err := s.db.Query(ctx, s.dialect.Rebind(query), processID, string(filter.Category))
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDatabase, "查询子单列表失败")
	}
	defer rows.Close()

	var out []*process.Child
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeDatabase, "读取子单失败")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDatabase, "遍历子单失败")
	}
	return out, nil
}

func (s *Store) SaveChild(ctx context.Context, c *process.Child) error {
	keys, err := json.Marshal(c.AttachmentKeys)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeInternal, "序列化附件键失败")
	}
	query := s.dialect.Rebind(`UPDATE fulfillment_children SET
			code = ?, process_id = ?, category = ?, status = ?, name = ?, attachment_keys = ?,
			version = ?, updated_at = ?, updated_by = ?, deleted_at = ?, deleted_by = ?
		WHERE id = ? AND version < ?`)
	res, err := s.db.Exec(ctx, query,
		c.Code, c.ProcessID, string(c.Category), string(c.Status), c.Name, string(keys),
		c.Version, c.UpdatedAt, c.UpdatedBy,
		nullTime(c.DeletedAt), nullString(c.DeletedBy),
		c.ID, c.Version)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeDatabase, "保存子单失败")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeDatabase, "保存子单失败")
	}
	if rows == 0 {
		return s.saveConflict(ctx, "fulfillment_children", c.ID, c.Version)
	}
	return nil
}

func (s *Store) BulkSetChildStatus(ctx context.Context, processID string, category process.Category,
	to process.ChildStatus, only, excluding []process.ChildStatus, user string) (int, error) {
	query := `UPDATE fulfillment_children SET
			status = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP, updated_by = ?
		WHERE process_id = ? AND category = ? AND deleted_at IS NULL AND status <> ?`
	args := []any{string(to), user, processID, string(category), string(to)}

	if len(only) > 0 {
		placeholders, statusArgs := statusList(only)
		query += ` AND status IN (` + placeholders + `)`
		args = append(args, statusArgs...)
	}
	if len(excluding) > 0 {
		placeholders, statusArgs := statusList(excluding)
		query += ` AND status NOT IN (` + placeholders + `)`
		args = append(args, statusArgs...)
	}

	res, err := s.db.Exec(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return 0, errors.WrapError(err, errors.ErrCodeDatabase, "批量改写子单状态失败")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, errors.WrapError(err, errors.ErrCodeDatabase, "批量改写子单状态失败")
	}
	return int(rows), nil
}

func (s *Store) SoftDeleteChildren(ctx context.Context, processID string,
	categories []process.Category, user string) (map[process.Category]int, error) {
	counts := make(map[process.Category]int)
	query := s.dialect.Rebind(`UPDATE fulfillment_children SET
			deleted_at = CURRENT_TIMESTAMP, deleted_by = ?, version = version + 1,
			updated_at = CURRENT_TIMESTAMP, updated_by = ?
		WHERE process_id = ? AND category = ? AND deleted_at IS NULL`)
	for _, cat := range categories {
		res, err := s.db.Exec(ctx, query, user, user, processID, string(cat))
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeDatabase, "软删子单失败")
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeDatabase, "软删子单失败")
		}
		if rows > 0 {
			counts[cat] = int(rows)
		}
	}
	return counts, nil
}

const lineItemColumns = `id, parent_id, category, item_code, name, quantity, unit,
	version, created_at, created_by, updated_at, updated_by`

func (s *Store) InsertLineItems(ctx context.Context, items []*process.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	query := s.dialect.Rebind(`INSERT INTO fulfillment_line_items (` + lineItemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for _, item := range items {
		if _, err := s.db.Exec(ctx, query,
			item.ID, item.ParentID, string(item.Category), item.ItemCode, item.Name,
			item.Quantity, item.Unit,
			item.Version, item.CreatedAt, item.CreatedBy, item.UpdatedAt, item.UpdatedBy); err != nil {
			return errors.WrapError(err, errors.ErrCodeDatabase, "写入行项目失败")
		}
	}
	return nil
}

func (s *Store) ListLineItems(ctx context.Context, parentID string) ([]*process.LineItem, error) {
	query := s.dialect.Rebind(`SELECT ` + lineItemColumns + ` FROM fulfillment_line_items
		WHERE parent_id = ? AND deleted_at IS NULL ORDER BY item_code`)
	rows, err := s.db.Query(ctx, query, parentID)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDatabase, "查询行项目失败")
	}
	defer rows.Close()

	var out []*process.LineItem
	for rows.Next() {
		item := &process.LineItem{}
		var category string
		if err := rows.Scan(&item.ID, &item.ParentID, &category, &item.ItemCode, &item.Name,
			&item.Quantity, &item.Unit,
			&item.Version, &item.CreatedAt, &item.CreatedBy, &item.UpdatedAt, &item.UpdatedBy); err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeDatabase, "读取行项目失败")
		}
		item.Category = process.Category(category)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDatabase, "遍历行项目失败")
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProcess(row scanner) (*process.Process, error) {
	p := &process.Process{}
	var (
		ptype, stage, active                 string
		confirmed, completed, cancelled, del sql.NullTime
		delBy                                sql.NullString
	)
	err := row.Scan(&p.ID, &p.Code, &ptype, &stage, &active, &p.CustomerAccount, &p.SalesOrderID,
		&confirmed, &completed, &cancelled,
		&p.Version, &p.CreatedAt, &p.CreatedBy, &p.UpdatedAt, &p.UpdatedBy, &del, &delBy)
	if err != nil {
		return nil, err
	}
	p.Type = process.ProcessType(ptype)
	p.Stage = process.Stage(stage)
	p.ActiveCategory = process.ActiveCategory(active)
	p.ConfirmedAt = timePtr(confirmed)
	p.CompletedAt = timePtr(completed)
	p.CancelledAt = timePtr(cancelled)
	p.DeletedAt = timePtr(del)
	p.DeletedBy = stringPtr(delBy)
	return p, nil
}

func scanChild(row scanner) (*process.Child, error) {
	c := &process.Child{}
	var (
		category, status, keys string
		del                    sql.NullTime
		delBy                  sql.NullString
	)
	err := row.Scan(&c.ID, &c.Code, &c.ProcessID, &category, &status, &c.Name, &keys,
		&c.Version, &c.CreatedAt, &c.CreatedBy, &c.UpdatedAt, &c.UpdatedBy, &del, &delBy)
	if err != nil {
		return nil, err
	}
	c.Category = process.Category(category)
	c.Status = process.ChildStatus(status)
	if keys != "" {
		if err := json.Unmarshal([]byte(keys), &c.AttachmentKeys); err != nil {
			return nil, fmt.Errorf("反序列化附件键失败: %w", err)
		}
	}
	c.DeletedAt = timePtr(del)
	c.DeletedBy = stringPtr(delBy)
	return c, nil
}

func statusList(statuses []process.ChildStatus) (string, []any) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
	args := make([]any, 0, len(statuses))
	for _, st := range statuses {
		args = append(args, string(st))
	}
	return placeholders, args
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
