package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/pkg/conv"
)

// 表结构与线上目录库保持一致，引擎只读写其中与推荐相关的列。
const schema = `
CREATE TABLE IF NOT EXISTS books_book (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL DEFAULT '',
	genre TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	cover_image_url TEXT,
	image_features TEXT
);
CREATE TABLE IF NOT EXISTS books_userbook (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL DEFAULT '',
	genre TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	cover_image TEXT,
	image_features TEXT,
	is_available INTEGER NOT NULL DEFAULT 1
);
`

type table struct {
	name      string
	imageCol  string
	available string
}

var tables = map[core.Kind]table{
	core.KindCatalog: {name: "books_book", imageCol: "cover_image_url", available: "1"},
	core.KindPeer:    {name: "books_userbook", imageCol: "cover_image", available: "is_available"},
}

// 列举顺序：平台上架在前，用户上架在后
var kindOrder = []core.Kind{core.KindCatalog, core.KindPeer}

// SQLCatalog 是 SQLite 实现的目录。
type SQLCatalog struct {
	db     *sql.DB
	logger zerolog.Logger
}

// SQLConfig SQLCatalog 配置
type SQLConfig struct {
	// DSN SQLite 数据库路径，":memory:" 为内存库
	DSN string

	// Migrate 启动时建表（表已存在时不做改动）
	Migrate bool
}

// NewSQLCatalog 打开数据库。
func NewSQLCatalog(cfg SQLConfig, logger zerolog.Logger) (*SQLCatalog, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("catalog dsn is required")
	}
	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// 内存库每个连接是独立的数据库
	if cfg.DSN == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	c := &SQLCatalog{db: db, logger: logger.With().Str("component", "sql_catalog").Logger()}
	if cfg.Migrate {
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating tables: %w", err)
		}
	}
	return c, nil
}

// DB 暴露底层连接（CLI 导入数据、测试造数用）。
func (c *SQLCatalog) DB() *sql.DB {
	return c.db
}

// Close 关闭数据库。
func (c *SQLCatalog) Close() error {
	return c.db.Close()
}

// Insert 写入一条物品记录并回填自增 ID，it.ID 的原值被忽略。
func (c *SQLCatalog) Insert(ctx context.Context, it *core.CatalogItem) error {
	t, ok := tables[it.Kind]
	if !ok {
		return core.WrapError(core.ErrCatalogUnavailable, fmt.Errorf("unknown kind %q", it.Kind))
	}
	var features any
	if it.HasVisualFeatures() {
		data, err := json.Marshal(it.VisualFeatures)
		if err != nil {
			return fmt.Errorf("marshaling features: %w", err)
		}
		features = string(data)
	}
	var image any
	if it.ImageRef != "" {
		image = it.ImageRef
	}

	query := fmt.Sprintf(`INSERT INTO %s (title, author, genre, category, description, %s, image_features) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.name, t.imageCol)
	args := []any{it.Title, it.Author, it.Genre, it.Category, it.Description, image, features}
	if it.Kind == core.KindPeer {
		query = fmt.Sprintf(`INSERT INTO %s (title, author, genre, category, description, %s, image_features, is_available) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.name, t.imageCol)
		args = append(args, it.Available)
	}

	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return core.WrapError(core.ErrCatalogUnavailable, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.WrapError(core.ErrCatalogUnavailable, err)
	}
	it.ID = id
	return nil
}

// ListItems 把过滤条件和 Limit 下推到 SQL。
// 向量是否可解析只能在读出后判断，涉及向量的条件会在 Go 侧再过滤一次，此时不下推 Limit。
func (c *SQLCatalog) ListItems(ctx context.Context, filter core.ListFilter) ([]*core.CatalogItem, error) {
	out := make([]*core.CatalogItem, 0)
	pushLimit := !filter.RequireVisualFeatures && !filter.MissingVisualFeatures
	for _, kind := range kindOrder {
		if !kindAllowed(filter.Kinds, kind) {
			continue
		}
		where := listWhere(tables[kind], filter)
		limit := 0
		if filter.Limit > 0 && pushLimit {
			limit = filter.Limit - len(out)
		}
		items, err := c.query(ctx, kind, where, limit)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if !filter.Accepts(it) {
				continue
			}
			out = append(out, it)
			if filter.Limit > 0 && len(out) >= filter.Limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// 向量列的空值写法，与 SaveVisualFeatures 的条件一致
const emptyFeatures = `(image_features IS NULL OR image_features IN ('', 'null', '[]'))`

func listWhere(t table, filter core.ListFilter) string {
	var conds []string
	if filter.RequireImage {
		conds = append(conds, fmt.Sprintf("%[1]s IS NOT NULL AND %[1]s != ''", t.imageCol))
	}
	if filter.RequireVisualFeatures {
		conds = append(conds, "NOT "+emptyFeatures)
	}
	if filter.OnlyAvailable && t.available != "1" {
		conds = append(conds, t.available+" = 1")
	}
	if len(conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conds, " AND ")
}

func (c *SQLCatalog) GetItem(ctx context.Context, kind core.Kind, id int64) (*core.CatalogItem, error) {
	if _, ok := tables[kind]; !ok {
		return nil, core.WrapError(core.ErrItemNotFound, fmt.Errorf("unknown kind %q", kind))
	}
	items, err := c.query(ctx, kind, "WHERE id = ?", 0, id)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, core.WrapError(core.ErrItemNotFound, fmt.Errorf("%s %d", kind, id))
	}
	return items[0], nil
}

// SaveVisualFeatures 只在 image_features 为空时写入。
// 列里已有内容（包括无法解析的旧数据）时返回 ErrAlreadyPresent。
func (c *SQLCatalog) SaveVisualFeatures(ctx context.Context, kind core.Kind, id int64, vector []float64) error {
	t, ok := tables[kind]
	if !ok {
		return core.WrapError(core.ErrItemNotFound, fmt.Errorf("unknown kind %q", kind))
	}
	data, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("marshaling features: %w", err)
	}

	query := fmt.Sprintf(`UPDATE %s SET image_features = ? WHERE id = ? AND %s`, t.name, emptyFeatures)
	res, err := c.db.ExecContext(ctx, query, string(data), id)
	if err != nil {
		return core.WrapError(core.ErrCatalogUnavailable, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// 区分已存在向量与物品不存在
		var exists int
		err := c.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, t.name), id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return core.WrapError(core.ErrItemNotFound, fmt.Errorf("%s %d", kind, id))
		}
		if err != nil {
			return core.WrapError(core.ErrCatalogUnavailable, err)
		}
		return core.WrapError(core.ErrAlreadyPresent, fmt.Errorf("%s %d", kind, id))
	}
	return nil
}

// query 按 id 升序读取；limit > 0 时追加 LIMIT。
func (c *SQLCatalog) query(ctx context.Context, kind core.Kind, where string, limit int, args ...any) ([]*core.CatalogItem, error) {
	t := tables[kind]
	query := fmt.Sprintf(`SELECT id, title, author, genre, category, description, %s, image_features, %s FROM %s %s ORDER BY id`,
		t.imageCol, t.available, t.name, where)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.WrapError(core.ErrCatalogUnavailable, err)
	}
	defer rows.Close()

	var out []*core.CatalogItem
	for rows.Next() {
		var (
			it        = &core.CatalogItem{Kind: kind}
			image     sql.NullString
			features  sql.NullString
			available bool
		)
		if err := rows.Scan(&it.ID, &it.Title, &it.Author, &it.Genre, &it.Category, &it.Description,
			&image, &features, &available); err != nil {
			return nil, core.WrapError(core.ErrCatalogUnavailable, err)
		}
		it.ImageRef = image.String
		it.Available = available
		if features.Valid {
			vec, err := conv.ParseVectorJSON([]byte(features.String))
			if err != nil {
				// 损坏的向量视为缺失
				c.logger.Warn().Err(err).Str("ref", it.Ref()).Msg("malformed image_features ignored")
			} else {
				it.VisualFeatures = vec
			}
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapError(core.ErrCatalogUnavailable, err)
	}
	return out, nil
}

func kindAllowed(kinds []core.Kind, k core.Kind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}

var _ core.Catalog = (*SQLCatalog)(nil)
