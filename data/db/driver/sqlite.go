// Package driver 注册具体的数据库驱动并提供 Open 辅助函数。
// basic 层保持驱动无关；需要真实连接的调用方（服务入口、测试）从这里打开数据库。
package driver

import (
	core "fulflow/data/db"
	"fulflow/data/db/basic"

	_ "modernc.org/sqlite"
)

// OpenSQLite 打开 sqlite 数据库（纯 Go 驱动，无 cgo）。
// dsn 形如 "file:fulflow.db" 或 ":memory:"。
func OpenSQLite(dsn string) (*basic.DB, error) {
	return basic.New(core.DBConfig{Driver: "sqlite", DSN: dsn})
}

// OpenSQLiteMemory 打开进程内 sqlite（测试常用）。
// 使用共享缓存保证同一连接池内可见同一份数据。
func OpenSQLiteMemory() (*basic.DB, error) {
	return basic.New(core.DBConfig{
		Driver:       "sqlite",
		DSN:          "file::memory:?cache=shared",
		MaxOpenConns: 1,
	})
}
