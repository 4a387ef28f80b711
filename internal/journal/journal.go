// Package journal persists a record of everything the maker did: orders
// posted, batches cancelled, fills observed. It is write-mostly and purely
// observational; trading state lives in memory and is never read back from
// here.
package journal

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Journal struct {
	db *gorm.DB
}

// Models

type PostedOrder struct {
	OrderHash      string `gorm:"primaryKey"`
	MarketHash     string `gorm:"index"`
	Outcome        int
	Size           decimal.Decimal `gorm:"type:decimal(20,6)"`
	Price          decimal.Decimal `gorm:"type:decimal(10,6)"`
	PercentageOdds string
	APIExpiry      int64
	DryRun         bool
	CreatedAt      time.Time
}

type Cancellation struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	MarketHash  string `gorm:"index"`
	OrderHashes string // comma-joined batch
	Count       int
	Reason      string // "vig", "reprice", "stop", "shutdown"
	CreatedAt   time.Time
}

type Fill struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	MarketHash string `gorm:"index"`
	OrderHash  string `gorm:"index"`
	Matched    decimal.Decimal `gorm:"type:decimal(20,6)"`
	Final      bool
	CreatedAt  time.Time
}

// New opens the journal database. A postgres:// DSN selects PostgreSQL,
// anything else is treated as a SQLite path.
func New(dbPath string) (*Journal, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Journal connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("Journal initialized (SQLite)")
	}

	if err := db.AutoMigrate(&PostedOrder{}, &Cancellation{}, &Fill{}); err != nil {
		return nil, err
	}

	return &Journal{db: db}, nil
}

// SaveOrder records an order we posted (or would have posted in dry-run).
func (j *Journal) SaveOrder(order *PostedOrder) {
	if j == nil {
		return
	}
	if err := j.db.Create(order).Error; err != nil {
		log.Warn().Err(err).Str("order", order.OrderHash).Msg("journal: save order failed")
	}
}

// SaveCancellation records one cancellation batch.
func (j *Journal) SaveCancellation(c *Cancellation) {
	if j == nil {
		return
	}
	if err := j.db.Create(c).Error; err != nil {
		log.Warn().Err(err).Str("market", c.MarketHash).Msg("journal: save cancellation failed")
	}
}

// SaveFill records one observed fill update.
func (j *Journal) SaveFill(f *Fill) {
	if j == nil {
		return
	}
	if err := j.db.Create(f).Error; err != nil {
		log.Warn().Err(err).Str("order", f.OrderHash).Msg("journal: save fill failed")
	}
}

// RecentOrders returns the latest posted orders, newest first.
func (j *Journal) RecentOrders(limit int) ([]PostedOrder, error) {
	var orders []PostedOrder
	err := j.db.Order("created_at DESC").Limit(limit).Find(&orders).Error
	return orders, err
}

// MarketFills returns every fill recorded for a market.
func (j *Journal) MarketFills(marketHash string) ([]Fill, error) {
	var fs []Fill
	err := j.db.Where("market_hash = ?", marketHash).Order("created_at DESC").Find(&fs).Error
	return fs, err
}
