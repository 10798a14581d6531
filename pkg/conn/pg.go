package conn

import (
	"cmp"
	"context"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PostgresOption describes how to reach the cache database. ConnString, when
// set, is used as is and the address fields are ignored.
type PostgresOption struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	Params     map[string]string
	ConnString string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
	// SlowQuery is the gorm slow statement threshold. Zero uses 200ms.
	SlowQuery time.Duration
	// Verbose logs every statement at debug level.
	Verbose bool
}

// Postgres is an open, pinged gorm pool.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(ctx context.Context, option PostgresOption) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(option.DSN()), &gorm.Config{Logger: option.logger()})
	if err != nil {
		return nil, errors.Wrap(err, "open postgres").With("host", option.Host)
	}
	pool, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "postgres pool")
	}
	if option.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(option.MaxOpenConns)
	}
	if option.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(option.MaxIdleConns)
	}
	if option.ConnMaxLifetime > 0 {
		pool.SetConnMaxLifetime(option.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(ctx, cmp.Or(option.PingTimeout, 5*time.Second))
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, errors.Wrap(err, "ping postgres").With("host", option.Host)
	}
	return &Postgres{db: db}, nil
}

func (c *Postgres) DB() *gorm.DB {
	if c == nil {
		return nil
	}
	return c.db
}

func (c *Postgres) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	pool, err := c.db.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// DSN renders the postgres:// URL for the option.
func (opt PostgresOption) DSN() string {
	if opt.ConnString != "" {
		return opt.ConnString
	}

	query := make(url.Values, len(opt.Params)+1)
	for key, value := range opt.Params {
		if key != "" {
			query.Set(key, value)
		}
	}
	query.Set("sslmode", cmp.Or(opt.SSLMode, "disable"))

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(cmp.Or(opt.Host, "localhost"), strconv.Itoa(cmp.Or(opt.Port, 5432))),
		RawQuery: query.Encode(),
	}
	if opt.User != "" {
		u.User = url.User(opt.User)
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		}
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}
	return u.String()
}

func (opt PostgresOption) logger() logger.Interface {
	level := logger.Warn
	if opt.Verbose {
		level = logger.Info
	}
	return logger.New(gormWriter{}, logger.Config{
		SlowThreshold:             cmp.Or(opt.SlowQuery, 200*time.Millisecond),
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

// gormWriter sends gorm's log lines to the process logger.
type gormWriter struct{}

func (gormWriter) Printf(format string, args ...any) {
	logs.Debugf("postgres: "+format, args...)
}
