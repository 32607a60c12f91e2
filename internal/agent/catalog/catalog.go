package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/patrickmn/go-cache"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// SourceKind tells the router which branch owns a document.
type SourceKind string

const (
	SourceUnknown       SourceKind = "unknown"
	SourceStructured    SourceKind = "structured"
	SourceKnowledgeBase SourceKind = "knowledge-base"
)

func (k SourceKind) Valid() bool {
	return k == SourceStructured || k == SourceKnowledgeBase
}

// Source is one registered document, addressed by its hint.
type Source struct {
	ID        uint       `gorm:"primaryKey"`
	Hint      string     `gorm:"uniqueIndex;size:255;not null"`
	Kind      SourceKind `gorm:"size:32;not null"`
	Title     string     `gorm:"size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Source) TableName() string {
	return "document_sources"
}

// Config is bound from CATALOG_* variables.
type Config struct {
	// Driver is "sqlite" or "postgres".
	Driver   string        `envconfig:"CATALOG_DRIVER" default:"sqlite"`
	DSN      string        `envconfig:"CATALOG_DSN" default:"file::memory:?cache=shared"`
	CacheTTL time.Duration `envconfig:"CATALOG_CACHE_TTL" default:"10m"`
}

// Catalog maps source hints to document kinds.
type Catalog struct {
	db    *gorm.DB
	cache *cache.Cache
}

// Open connects to the configured database and migrates the schema.
func Open(cfg Config) (*Catalog, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres", "postgresql":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("catalog: unsupported driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("catalog: open: %w", err)
	}
	return New(db, cfg.CacheTTL)
}

// New wraps an existing connection.
func New(db *gorm.DB, ttl time.Duration) (*Catalog, error) {
	if err := db.AutoMigrate(&Source{}); err != nil {
		return nil, fmt.Errorf("catalog: migrate: %w", err)
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Catalog{db: db, cache: cache.New(ttl, 2*ttl)}, nil
}

func normalizeHint(hint string) string {
	return strings.ToLower(strings.TrimSpace(hint))
}

// Lookup resolves a hint. Unregistered hints are SourceUnknown with no error.
func (c *Catalog) Lookup(ctx context.Context, hint string) (SourceKind, error) {
	key := normalizeHint(hint)
	if key == "" {
		return SourceUnknown, nil
	}
	if v, found := c.cache.Get(key); found {
		return v.(SourceKind), nil
	}

	var src Source
	err := c.db.WithContext(ctx).Where("hint = ?", key).First(&src).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.cache.SetDefault(key, SourceUnknown)
		return SourceUnknown, nil
	case err != nil:
		return SourceUnknown, fmt.Errorf("catalog: lookup %q: %w", key, err)
	}

	kind := src.Kind
	if !kind.Valid() {
		kind = SourceUnknown
	}
	c.cache.SetDefault(key, kind)
	return kind, nil
}

// Register inserts or updates a source.
func (c *Catalog) Register(ctx context.Context, hint string, kind SourceKind, title string) error {
	key := normalizeHint(hint)
	if key == "" {
		return fmt.Errorf("catalog: empty hint")
	}
	if !kind.Valid() {
		return fmt.Errorf("catalog: invalid kind %q", kind)
	}

	src := Source{Hint: key, Kind: kind, Title: title}
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "hint"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "title", "updated_at"}),
	}).Create(&src).Error
	if err != nil {
		return fmt.Errorf("catalog: register %q: %w", key, err)
	}
	c.cache.SetDefault(key, kind)
	return nil
}

// List returns every registered source ordered by hint.
func (c *Catalog) List(ctx context.Context) ([]Source, error) {
	var out []Source
	if err := c.db.WithContext(ctx).Order("hint").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (c *Catalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
