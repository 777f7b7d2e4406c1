// Package uowbun provides Bun backed providers for units of work.
package uowbun

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lemmego/uow"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// =====================================
// Provider Implementation
// =====================================

// Provider implements uow.EntityProvider on a dedicated connection of a
// shared *bun.DB.
type Provider struct {
	*uow.Resource[*transaction]
	db *bun.DB
}

var (
	_ uow.EntityProvider = (*Provider)(nil)
	_ uow.Migrator       = (*Provider)(nil)
	_ uow.Pinger         = (*Provider)(nil)
)

// NewProvider creates a provider whose transaction will be begun at level on
// first use.
func NewProvider(db *bun.DB, level uow.IsolationLevel, opts ...uow.Option) *Provider {
	p := &Provider{db: db}
	p.Resource = uow.NewResource[*transaction](level, p.connect, opts...)
	return p
}

// DB returns the shared handle the provider draws its connection from.
func (p *Provider) DB() *bun.DB {
	return p.db
}

// Session returns the provider's transaction, opening it if needed.
func (p *Provider) Session(ctx context.Context) (bun.Tx, error) {
	tx, err := p.Tx(ctx)
	if err != nil {
		return bun.Tx{}, err
	}
	return tx.tx, nil
}

func (p *Provider) connect(ctx context.Context) (uow.Conn[*transaction], error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &connection{conn: conn}, nil
}

// Query runs a raw SQL statement and scans the rows into dest, a *[]T.
func (p *Provider) Query(ctx context.Context, dest interface{}, statement string, args ...interface{}) error {
	tx, err := p.Session(ctx)
	if err != nil {
		return err
	}
	return convertBunError(tx.NewRaw(statement, args...).Scan(ctx, dest))
}

// Find loads the row whose primary key equals key into dest.
func (p *Provider) Find(ctx context.Context, dest interface{}, key interface{}) (bool, error) {
	tx, err := p.Session(ctx)
	if err != nil {
		return false, err
	}
	err = tx.NewSelect().Model(dest).Where("?TablePKs = ?", key).Limit(1).Scan(ctx)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, convertBunError(err)
	}
	return true, nil
}

// Insert creates the row for entity and populates its generated fields.
func (p *Provider) Insert(ctx context.Context, entity interface{}) (bool, error) {
	tx, err := p.Session(ctx)
	if err != nil {
		return false, err
	}
	result, err := tx.NewInsert().Model(entity).Exec(ctx)
	return affected(result, err)
}

// Update writes every column of entity.
func (p *Provider) Update(ctx context.Context, entity interface{}) (bool, error) {
	tx, err := p.Session(ctx)
	if err != nil {
		return false, err
	}
	result, err := tx.NewUpdate().Model(entity).WherePK().Exec(ctx)
	return affected(result, err)
}

// Delete removes the row of entity by primary key.
func (p *Provider) Delete(ctx context.Context, entity interface{}) (bool, error) {
	tx, err := p.Session(ctx)
	if err != nil {
		return false, err
	}
	result, err := tx.NewDelete().Model(entity).WherePK().Exec(ctx)
	return affected(result, err)
}

// Execute runs a raw SQL command and returns the number of affected rows.
func (p *Provider) Execute(ctx context.Context, statement string, args ...interface{}) (int64, error) {
	tx, err := p.Session(ctx)
	if err != nil {
		return 0, err
	}
	result, err := tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return 0, convertBunError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, convertBunError(err)
	}
	return n, nil
}

// Migrate creates the tables of entities if they do not exist, outside the
// transaction.
func (p *Provider) Migrate(ctx context.Context, entities ...interface{}) error {
	for _, entity := range entities {
		if _, err := p.db.NewCreateTable().Model(entity).IfNotExists().Exec(ctx); err != nil {
			return convertBunError(err)
		}
	}
	return nil
}

// Ping checks the database connection health
func (p *Provider) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func affected(result sql.Result, err error) (bool, error) {
	if err != nil {
		return false, convertBunError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, convertBunError(err)
	}
	return n > 0, nil
}

// =====================================
// Connection and Transaction
// =====================================

type connection struct {
	conn bun.Conn
}

func (c *connection) BeginTx(ctx context.Context, level uow.IsolationLevel) (*transaction, error) {
	tx, err := c.conn.BeginTx(ctx, level.TxOptions())
	if err != nil {
		return nil, err
	}
	return &transaction{tx: tx}, nil
}

func (c *connection) Close(ctx context.Context) error {
	return c.conn.Close()
}

type transaction struct {
	tx bun.Tx
}

func (t *transaction) Commit(ctx context.Context) error {
	return t.tx.Commit()
}

func (t *transaction) Rollback(ctx context.Context) error {
	return t.tx.Rollback()
}

// =====================================
// Factory and Registration
// =====================================

// Factory creates providers over one *bun.DB.
type Factory struct {
	db   *bun.DB
	opts []uow.Option
}

// NewFactory returns a Factory over db.
func NewFactory(db *bun.DB, opts ...uow.Option) *Factory {
	return &Factory{db: db, opts: opts}
}

// CreateProvider implements uow.ProviderFactory.
func (f *Factory) CreateProvider(level uow.IsolationLevel) (*Provider, error) {
	return NewProvider(f.db, level, f.opts...), nil
}

// Register registers db and the *Provider factory over it in c.
func Register(c *uow.Container, db *bun.DB, opts ...uow.Option) {
	uow.RegisterInstance(c, db)
	uow.RegisterProvider[*Provider](c, NewFactory(db, opts...))
}

// =====================================
// Opening a Database
// =====================================

// Open connects to the database described by config. options["bun"] may set
// "log_level" (silent, info, debug), which writes executed queries to log, and
// "pg_driver" ("pq" or "pgdriver") to choose the PostgreSQL driver.
func Open(config uow.Config, log zerolog.Logger) (*bun.DB, error) {
	dialect, err := uow.NormalizeDialect(config.Driver)
	if err != nil {
		return nil, err
	}
	bunOpts := config.AdapterOptions("bun")

	var sqlDB *sql.DB
	switch dialect {
	case uow.DialectPostgres:
		if driver, _ := bunOpts["pg_driver"].(string); driver == "pgdriver" {
			sqlDB = createPgDriverConnection(config)
		} else {
			sqlDB, err = createPostgresConnection(config)
		}
	case uow.DialectMySQL:
		sqlDB, err = createMySQLConnection(config)
	case uow.DialectSQLite:
		sqlDB, err = createSQLiteConnection(config)
	default:
		return nil, uow.NewError(uow.ErrorKindUnsupported, fmt.Sprintf("unsupported driver: %s", config.Driver))
	}
	if err != nil {
		return nil, uow.NewErrorWithCause(uow.ErrorKindResource, "failed to connect to database", err)
	}

	// Configure connection pool
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}

	var db *bun.DB
	switch dialect {
	case uow.DialectPostgres:
		db = bun.NewDB(sqlDB, pgdialect.New())
	case uow.DialectMySQL:
		db = bun.NewDB(sqlDB, mysqldialect.New())
	case uow.DialectSQLite:
		db = bun.NewDB(sqlDB, sqlitedialect.New())
	}

	if logLevel, ok := bunOpts["log_level"].(string); ok && logLevel != "silent" {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(logLevel == "debug"),
			bundebug.WithWriter(log),
		))
	}

	return db, nil
}

// createPostgresConnection creates a PostgreSQL connection through lib/pq
func createPostgresConnection(config uow.Config) (*sql.DB, error) {
	if config.ConnectionURL != "" {
		return sql.Open("postgres", config.ConnectionURL)
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		config.Username, config.Password, config.Host, config.Port, config.Database)

	if config.SSL.Enabled {
		dsn = strings.Replace(dsn, "sslmode=disable", "sslmode="+config.SSL.Mode, 1)
	}

	return sql.Open("postgres", dsn)
}

// createPgDriverConnection creates a PostgreSQL connection using pgdriver
func createPgDriverConnection(config uow.Config) *sql.DB {
	connector := pgdriver.NewConnector(pgdriver.WithDSN(buildPostgresDSN(config)))
	return sql.OpenDB(connector)
}

// buildPostgresDSN builds a PostgreSQL URL for pgdriver
func buildPostgresDSN(config uow.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		config.Username, config.Password, config.Host, config.Port, config.Database)

	if config.SSL.Enabled {
		return dsn + "?sslmode=" + config.SSL.Mode
	}
	return dsn + "?sslmode=disable"
}

// createMySQLConnection creates a MySQL connection
func createMySQLConnection(config uow.Config) (*sql.DB, error) {
	if config.ConnectionURL != "" {
		return sql.Open("mysql", config.ConnectionURL)
	}

	mysqlConfig := mysql.Config{
		User:      config.Username,
		Passwd:    config.Password,
		Net:       "tcp",
		Addr:      fmt.Sprintf("%s:%d", config.Host, config.Port),
		DBName:    config.Database,
		ParseTime: true,
	}

	return sql.Open("mysql", mysqlConfig.FormatDSN())
}

// createSQLiteConnection creates a SQLite connection
func createSQLiteConnection(config uow.Config) (*sql.DB, error) {
	return sql.Open("sqlite3", config.Database)
}

// convertBunError maps Bun and driver errors onto uow error kinds.
func convertBunError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case err == sql.ErrNoRows:
		return uow.NewErrorWithCause(uow.ErrorKindNotFound, "record not found", err)
	case err == sql.ErrTxDone:
		return uow.NewErrorWithCause(uow.ErrorKindResource, "transaction already finished", err)
	case strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique"):
		return uow.NewErrorWithCause(uow.ErrorKindDuplicate, "duplicate key violation", err)
	case strings.Contains(msg, "foreign key") || strings.Contains(msg, "constraint"):
		return uow.NewErrorWithCause(uow.ErrorKindConstraint, "constraint violation", err)
	case strings.Contains(msg, "timeout"):
		return uow.NewErrorWithCause(uow.ErrorKindTimeout, "operation timeout", err)
	default:
		return uow.NewErrorWithCause(uow.ErrorKindResource, "database operation failed", err)
	}
}
