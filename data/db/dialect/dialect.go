// Package dialect 抽象底层数据库的方言差异。
// 只覆盖本项目实际用到的能力：占位符重写、标识符转义、唯一键冲突识别。
package dialect

import (
	"strconv"
	"strings"

	core "fulflow/data/db"
)

// Name 标准化的数据库方言名称
type Name string

const (
	NameSQLite   Name = "sqlite"
	NamePostgres Name = "postgres"
	NameUnknown  Name = ""
)

// Dialect 表示当前数据库的方言能力
type Dialect struct {
	name Name
}

// New 根据字符串构造方言（大小写不敏感）
func New(name string) Dialect {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return Dialect{name: NameSQLite}
	case "postgres", "postgresql", "pgx":
		return Dialect{name: NamePostgres}
	default:
		return Dialect{name: NameUnknown}
	}
}

// FromDatabase 从 IDatabase 实例推断方言。
// 需要实例可选实现 IDialectNameProvider，否则返回 Unknown。
func FromDatabase(db core.IDatabase) Dialect {
	if db == nil {
		return Dialect{name: NameUnknown}
	}
	if p, ok := db.(core.IDialectNameProvider); ok {
		return New(p.GetDialectName())
	}
	return Dialect{name: NameUnknown}
}

// Name 返回标准化方言名
func (d Dialect) Name() Name {
	return d.name
}

// QuoteIdentifier 按方言对标识符加引号。
// 支持 schema.table 等带点形式，对每一段分别转义；Unknown 方言原样返回。
func (d Dialect) QuoteIdentifier(name string) string {
	if name == "" {
		return ""
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p == "" {
			continue
		}
		switch d.name {
		case NameSQLite, NamePostgres:
			parts[i] = `"` + p + `"`
		default:
		}
	}
	return strings.Join(parts, ".")
}

// Rebind 将通用占位符 ? 转换为方言特定形式。
// 目前仅 Postgres 需要替换（? → $1、$2...）。
//
// 限制：简单字符扫描，不解析 SQL 语法；SQL 字符串字面量中的 ? 也会被替换，
// 调用方应避免在字面量中书写 ?，必要时改为参数传入。
func (d Dialect) Rebind(query string) string {
	if query == "" {
		return query
	}
	switch d.name {
	case NamePostgres:
		var sb strings.Builder
		sb.Grow(len(query) + 4)
		argIndex := 1
		for i := 0; i < len(query); i++ {
			ch := query[i]
			if ch == '?' {
				sb.WriteByte('$')
				sb.WriteString(strconv.Itoa(argIndex))
				argIndex++
			} else {
				sb.WriteByte(ch)
			}
		}
		return sb.String()
	default:
		return query
	}
}

// IsUniqueViolation 判断错误是否为唯一键/主键冲突。
// 基于错误消息关键字匹配；更精确的判断应使用驱动特定错误类型。
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch d.name {
	case NameSQLite:
		return strings.Contains(msg, "unique constraint failed")
	case NamePostgres:
		return strings.Contains(msg, "duplicate key") ||
			strings.Contains(msg, "unique constraint")
	default:
		return strings.Contains(msg, "duplicate key") ||
			strings.Contains(msg, "unique constraint")
	}
}
