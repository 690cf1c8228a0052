package linedb

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type DatabaseLocation string

const (
	NO_DATABASE       DatabaseLocation = ""
	INMEMORY_DATABASE DatabaseLocation = ":memory:"
)

const (
	// Records inserted per statement
	recordBatchSize = 500
	// Cached records
	recordCacheSize = 1e4
	recordCacheTTL  = 5 * time.Minute
)

type DatabaseConfiguration struct {
	// Location of the sqlite file. "-" keeps the catalog in memory
	Path string
}

type Repository interface {
	WithTransaction(fn func(*gorm.DB) error) error
	Close() error
	connect() (*gorm.DB, error)
}

type repository struct {
	db *gorm.DB

	location string
	config   *gorm.Config
	models   []any
}

// Repository of the catalog models. The connection is opened on first use.
func NewRepository(conf DatabaseConfiguration) (Repository, error) {
	config := &gorm.Config{
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	}

	location := conf.Path
	switch DatabaseLocation(location) {
	case NO_DATABASE:
		return nil, errors.New("no catalog location")
	case "-", INMEMORY_DATABASE:
		// single connection, see connect
		location = string(INMEMORY_DATABASE)
		config.PrepareStmt = false
	}

	return &repository{
		location: location,
		config:   config,
		models:   []any{&Database{}, &Record{}},
	}, nil
}

// do whatever within a separate withTransaction
func (r *repository) WithTransaction(fn func(conn *gorm.DB) error) error {
	if _, err := r.connect(); err != nil {
		return err
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(tx) // pass new repo to handler
	})
}

func (r *repository) connect() (*gorm.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	db, err := gorm.Open(sqlite.Open(r.location), r.config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database connection")
	}

	if r.location == string(INMEMORY_DATABASE) {
		// every connection would get its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get database connection")
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, errors.Wrap(err, "failed to enable foreign keys")
	}
	if err := db.AutoMigrate(r.models...); err != nil {
		return nil, errors.Wrap(err, "failed to migrate catalog")
	}
	r.db = db

	return db, nil
}

func (r *repository) Close() error {
	if r.db == nil {
		return nil
	}

	sqlDB, err := r.db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get database connection")
	}
	r.db = nil
	return sqlDB.Close()
}

type recordKey struct {
	database string
	position int
}

// Catalog of stored databases
type Catalog struct {
	Repository
	cache *expirable.LRU[recordKey, string]
}

func NewCatalog(repo Repository) *Catalog {
	cache := expirable.NewLRU[recordKey, string](recordCacheSize, nil, recordCacheTTL)
	return &Catalog{repo, cache}
}

func findDatabase(conn *gorm.DB, name string) (*Database, error) {
	var db Database
	if err := conn.Where("name = ?", name).First(&db).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "database %s", name)
		}
		return nil, errors.Wrapf(err, "failed to find database %s", name)
	}
	return &db, nil
}

// Stores the records of a database, replacing any database with the same
// name.
func (c *Catalog) Save(name string, sources, skipped, records []string) (*Database, error) {
	db := &Database{
		Name:    name,
		Sources: sources,
		Skipped: skipped,
	}

	err := c.WithTransaction(func(conn *gorm.DB) error {
		if err := dropDatabase(conn, name); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		if err := conn.Omit("Records").Create(db).Error; err != nil {
			return errors.Wrapf(err, "failed to create database %s", name)
		}

		if len(records) == 0 {
			return nil
		}

		rows := make([]*Record, len(records))
		for i, text := range records {
			rows[i] = &Record{DatabaseID: db.ID, Position: i, Text: text}
		}
		if err := conn.CreateInBatches(rows, recordBatchSize).Error; err != nil {
			return errors.Wrapf(err, "failed to store records of %s", name)
		}
		db.Records = rows
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.cache.Purge()
	return db, nil
}

// Every record of a database, in order
func (c *Catalog) Records(name string) ([]string, error) {
	var records []string
	err := c.WithTransaction(func(conn *gorm.DB) error {
		db, err := findDatabase(conn, name)
		if err != nil {
			return err
		}

		q := conn.Model(&Record{}).
			Where("database_id = ?", db.ID).
			Order("position").
			Pluck("text", &records)
		if err := q.Error; err != nil {
			return errors.Wrapf(err, "failed to find records of %s", name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// A single record, by position
func (c *Catalog) Record(name string, position int) (string, error) {
	key := recordKey{name, position}
	if text, ok := c.cache.Get(key); ok {
		return text, nil
	}

	var rec Record
	err := c.WithTransaction(func(conn *gorm.DB) error {
		db, err := findDatabase(conn, name)
		if err != nil {
			return err
		}

		q := conn.Where("database_id = ? AND position = ?", db.ID, position).First(&rec)
		if err := q.Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(ErrNotFound, "record %d of %s", position, name)
			}
			return errors.Wrapf(err, "failed to find record %d of %s", position, name)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	c.cache.Add(key, rec.Text)
	return rec.Text, nil
}

// Converts a glob pattern to a LIKE pattern escaped with '\'
func globToSQLLike(glob string) string {
	// Escape SQL LIKE wildcards
	glob = strings.ReplaceAll(glob, "\\", "\\\\")
	glob = strings.ReplaceAll(glob, "%", "\\%")
	glob = strings.ReplaceAll(glob, "_", "\\_")
	// Convert glob wildcards to SQL LIKE
	glob = strings.ReplaceAll(glob, "*", "%")
	glob = strings.ReplaceAll(glob, "?", "_")
	return glob
}

// Stored databases with their record counts, by name. With patterns, only
// the databases whose name matches one of the glob patterns.
func (c *Catalog) List(patterns ...string) ([]*DatabaseSummary, error) {
	var summaries []*DatabaseSummary
	err := c.WithTransaction(func(conn *gorm.DB) error {
		q := conn.Model(&Database{})
		for i, pattern := range patterns {
			like := globToSQLLike(pattern)
			if i == 0 {
				q = q.Where("name LIKE ? ESCAPE '\\'", like)
			} else {
				q = q.Or("name LIKE ? ESCAPE '\\'", like)
			}
		}

		var dbs []*Database
		if err := q.Order("name").Find(&dbs).Error; err != nil {
			return errors.Wrap(err, "failed to list databases")
		}

		for _, db := range dbs {
			summary := &DatabaseSummary{
				Name:    db.Name,
				Sources: db.Sources,
				Skipped: db.Skipped,
			}
			if err := conn.Model(&Record{}).Where("database_id = ?", db.ID).Count(&summary.Records).Error; err != nil {
				return errors.Wrapf(err, "failed to count records of %s", db.Name)
			}
			summaries = append(summaries, summary)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// Removes a database and its records
func (c *Catalog) Drop(name string) error {
	err := c.WithTransaction(func(conn *gorm.DB) error {
		return dropDatabase(conn, name)
	})
	if err != nil {
		return err
	}

	c.cache.Purge()
	return nil
}

func dropDatabase(conn *gorm.DB, name string) error {
	db, err := findDatabase(conn, name)
	if err != nil {
		return err
	}

	if err := conn.Where("database_id = ?", db.ID).Delete(&Record{}).Error; err != nil {
		return errors.Wrapf(err, "failed to delete records of %s", name)
	}
	if err := conn.Unscoped().Delete(db).Error; err != nil {
		return errors.Wrapf(err, "failed to delete database %s", name)
	}
	return nil
}
