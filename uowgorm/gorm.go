// Package uowgorm provides GORM backed providers for units of work.
package uowgorm

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lemmego/uow"
	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// =====================================
// Provider Implementation
// =====================================

// Provider implements uow.EntityProvider on a dedicated connection of a
// shared *gorm.DB. Every operation runs in the provider's single transaction.
type Provider struct {
	*uow.Resource[*transaction]
	db *gorm.DB
}

var (
	_ uow.EntityProvider = (*Provider)(nil)
	_ uow.Migrator       = (*Provider)(nil)
	_ uow.Pinger         = (*Provider)(nil)
)

// NewProvider creates a provider whose transaction will be begun at level on
// first use.
func NewProvider(db *gorm.DB, level uow.IsolationLevel, opts ...uow.Option) *Provider {
	p := &Provider{db: db}
	p.Resource = uow.NewResource[*transaction](level, p.connect, opts...)
	return p
}

// DB returns the shared handle the provider draws its connection from.
func (p *Provider) DB() *gorm.DB {
	return p.db
}

// Session returns the transactional handle for operations not covered by
// uow.EntityProvider, opening the transaction if needed.
func (p *Provider) Session(ctx context.Context) (*gorm.DB, error) {
	tx, err := p.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return tx.db.WithContext(ctx), nil
}

func (p *Provider) connect(ctx context.Context) (uow.Conn[*transaction], error) {
	sqlDB, err := p.db.DB()
	if err != nil {
		return nil, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &connection{db: p.db, conn: conn}, nil
}

// Query runs a raw SQL statement and scans the rows into dest, a *[]T.
func (p *Provider) Query(ctx context.Context, dest interface{}, statement string, args ...interface{}) error {
	db, err := p.Session(ctx)
	if err != nil {
		return err
	}
	return convertGormError(db.Raw(statement, args...).Scan(dest).Error)
}

// Find loads the row whose primary key equals key into dest.
func (p *Provider) Find(ctx context.Context, dest interface{}, key interface{}) (bool, error) {
	db, err := p.Session(ctx)
	if err != nil {
		return false, err
	}
	result := db.Where(clause.Eq{Column: clause.PrimaryColumn, Value: key}).Take(dest)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, convertGormError(result.Error)
	}
	return true, nil
}

// Insert creates the row for entity and populates its generated fields.
func (p *Provider) Insert(ctx context.Context, entity interface{}) (bool, error) {
	db, err := p.Session(ctx)
	if err != nil {
		return false, err
	}
	result := db.Create(entity)
	if result.Error != nil {
		return false, convertGormError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Update writes every column of entity, zero values included.
func (p *Provider) Update(ctx context.Context, entity interface{}) (bool, error) {
	db, err := p.Session(ctx)
	if err != nil {
		return false, err
	}
	result := db.Model(entity).Select("*").Updates(entity)
	if result.Error != nil {
		return false, convertGormError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Delete removes the row of entity by primary key.
func (p *Provider) Delete(ctx context.Context, entity interface{}) (bool, error) {
	db, err := p.Session(ctx)
	if err != nil {
		return false, err
	}
	result := db.Delete(entity)
	if result.Error != nil {
		return false, convertGormError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Execute runs a raw SQL command and returns the number of affected rows.
func (p *Provider) Execute(ctx context.Context, statement string, args ...interface{}) (int64, error) {
	db, err := p.Session(ctx)
	if err != nil {
		return 0, err
	}
	result := db.Exec(statement, args...)
	if result.Error != nil {
		return 0, convertGormError(result.Error)
	}
	return result.RowsAffected, nil
}

// Migrate auto-migrates the tables of entities outside the transaction.
func (p *Provider) Migrate(ctx context.Context, entities ...interface{}) error {
	return convertGormError(p.db.WithContext(ctx).AutoMigrate(entities...))
}

// Ping checks the database connection health
func (p *Provider) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return uow.NewErrorWithCause(uow.ErrorKindResource, "failed to get underlying sql.DB", err)
	}
	return sqlDB.PingContext(ctx)
}

// =====================================
// Connection and Transaction
// =====================================

type connection struct {
	db   *gorm.DB
	conn *sql.Conn
}

func (c *connection) BeginTx(ctx context.Context, level uow.IsolationLevel) (*transaction, error) {
	session := c.db.Session(&gorm.Session{NewDB: true, Context: ctx})
	session.Statement.ConnPool = c.conn

	tx := session.Begin(level.TxOptions())
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &transaction{db: tx}, nil
}

func (c *connection) Close(ctx context.Context) error {
	return c.conn.Close()
}

type transaction struct {
	db *gorm.DB
}

func (t *transaction) Commit(ctx context.Context) error {
	return t.db.Commit().Error
}

func (t *transaction) Rollback(ctx context.Context) error {
	return t.db.Rollback().Error
}

// =====================================
// Factory and Registration
// =====================================

// Factory creates providers over one *gorm.DB.
type Factory struct {
	db   *gorm.DB
	opts []uow.Option
}

// NewFactory returns a Factory over db.
func NewFactory(db *gorm.DB, opts ...uow.Option) *Factory {
	return &Factory{db: db, opts: opts}
}

// CreateProvider implements uow.ProviderFactory.
func (f *Factory) CreateProvider(level uow.IsolationLevel) (*Provider, error) {
	return NewProvider(f.db, level, f.opts...), nil
}

// Register registers db and the *Provider factory over it in c.
func Register(c *uow.Container, db *gorm.DB, opts ...uow.Option) {
	uow.RegisterInstance(c, db)
	uow.RegisterProvider[*Provider](c, NewFactory(db, opts...))
}

// =====================================
// Opening a Database
// =====================================

// Open connects to the database described by config. GORM's own logging is
// written to log; options["gorm"] may set "log_level" (silent, error, warn,
// info) and "singular_table".
func Open(config uow.Config, log zerolog.Logger) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: newLogger(log, logger.Warn),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: false,
		},
	}

	if gormOpts := config.AdapterOptions("gorm"); gormOpts != nil {
		if logLevel, ok := gormOpts["log_level"].(string); ok {
			switch logLevel {
			case "silent":
				gormConfig.Logger = newLogger(log, logger.Silent)
			case "error":
				gormConfig.Logger = newLogger(log, logger.Error)
			case "warn":
				gormConfig.Logger = newLogger(log, logger.Warn)
			case "info":
				gormConfig.Logger = newLogger(log, logger.Info)
			}
		}

		if singularTable, ok := gormOpts["singular_table"].(bool); ok {
			gormConfig.NamingStrategy = schema.NamingStrategy{
				SingularTable: singularTable,
			}
		}
	}

	dialect, err := uow.NormalizeDialect(config.Driver)
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch dialect {
	case uow.DialectPostgres:
		dialector = postgres.Open(buildPostgresDSN(config))
	case uow.DialectMySQL:
		dialector = mysql.Open(buildMySQLDSN(config))
	case uow.DialectSQLite:
		dialector = sqlite.Open(config.Database)
	case uow.DialectSQLServer:
		dialector = sqlserver.Open(buildSQLServerDSN(config))
	default:
		return nil, uow.NewError(uow.ErrorKindUnsupported, fmt.Sprintf("unsupported driver: %s", config.Driver))
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, uow.NewErrorWithCause(uow.ErrorKindResource, "failed to connect to database", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, uow.NewErrorWithCause(uow.ErrorKindResource, "failed to get underlying sql.DB", err)
	}

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

	return db, nil
}

// Close closes the pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newLogger(log zerolog.Logger, level logger.LogLevel) logger.Interface {
	return logger.New(&log, logger.Config{
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}
