package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/launchforge/settlement/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	DB *gorm.DB
}

// NewDatabase opens the store. A "postgres://" DSN selects the postgres
// driver; anything else is treated as a sqlite file path.
func NewDatabase(dsn string) (*Database, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Error,
			IgnoreRecordNotFoundError: true,
		},
	)

	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		if dir := filepath.Dir(dsn); dir != "." && dsn != ":memory:" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	database := &Database{DB: db}
	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return database, nil
}

func (d *Database) migrate() error {
	return d.DB.AutoMigrate(
		&models.TokenLaunch{},
		&models.EmissionSplit{},
		&models.DesignatedClaim{},
		&models.ClaimRecord{},
		&models.Presale{},
		&models.PresaleBid{},
		&models.PresaleClaim{},
		&models.PresaleClaimTransaction{},
	)
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Token launch operations

func (d *Database) CreateTokenLaunch(launch *models.TokenLaunch) error {
	return d.DB.Create(launch).Error
}

func (d *Database) GetTokenLaunch(tokenAddress string) (*models.TokenLaunch, error) {
	var launch models.TokenLaunch
	err := d.DB.Where("token_address = ?", tokenAddress).First(&launch).Error
	if err != nil {
		return nil, err
	}
	return &launch, nil
}

// Emission split operations

func (d *Database) CreateEmissionSplit(split *models.EmissionSplit) error {
	return d.DB.Create(split).Error
}

func (d *Database) ListEmissionSplits(tokenAddress string) ([]models.EmissionSplit, error) {
	var splits []models.EmissionSplit
	err := d.DB.Where("token_address = ?", tokenAddress).Order("id asc").Find(&splits).Error
	return splits, err
}

// Designated claim operations

func (d *Database) CreateDesignatedClaim(claim *models.DesignatedClaim) error {
	return d.DB.Create(claim).Error
}

// GetDesignatedClaim returns nil without error when no designation exists.
func (d *Database) GetDesignatedClaim(tokenAddress string) (*models.DesignatedClaim, error) {
	var claim models.DesignatedClaim
	err := d.DB.Where("token_address = ?", tokenAddress).First(&claim).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

// Claim record operations

func (d *Database) CreateClaimRecord(record *models.ClaimRecord) error {
	return d.DB.Create(record).Error
}

func (d *Database) DeleteClaimRecord(id uint) error {
	return d.DB.Delete(&models.ClaimRecord{}, id).Error
}

// PromoteClaimRecord replaces the placeholder signature with the real one and
// marks the row confirmed.
func (d *Database) PromoteClaimRecord(id uint, txSignature string, confirmedAt time.Time) error {
	return d.DB.Model(&models.ClaimRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"tx_signature": txSignature,
		"status":       models.ClaimStatusConfirmed,
		"confirmed_at": confirmedAt,
	}).Error
}

// LatestConfirmedClaim returns the most recent confirmed claim for a token,
// or nil when none exists.
func (d *Database) LatestConfirmedClaim(tokenAddress string) (*models.ClaimRecord, error) {
	var record models.ClaimRecord
	err := d.DB.Where("token_address = ? AND status = ?", tokenAddress, models.ClaimStatusConfirmed).
		Order("confirmed_at desc").First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (d *Database) SumConfirmedClaims(tokenAddress string) (uint64, error) {
	var total uint64
	err := d.DB.Model(&models.ClaimRecord{}).
		Where("token_address = ? AND status = ?", tokenAddress, models.ClaimStatusConfirmed).
		Select("COALESCE(SUM(amount), 0)").Scan(&total).Error
	return total, err
}

// Presale operations

func (d *Database) CreatePresale(presale *models.Presale) error {
	return d.DB.Create(presale).Error
}

func (d *Database) GetPresale(tokenAddress string) (*models.Presale, error) {
	var presale models.Presale
	err := d.DB.Where("token_address = ?", tokenAddress).First(&presale).Error
	if err != nil {
		return nil, err
	}
	return &presale, nil
}

func (d *Database) UpdatePresale(presale *models.Presale) error {
	return d.DB.Save(presale).Error
}

// Presale bid operations

func (d *Database) CreatePresaleBid(bid *models.PresaleBid) error {
	return d.DB.Create(bid).Error
}

// GetPresaleBidBySignature returns nil without error when the signature has
// not been recorded.
func (d *Database) GetPresaleBidBySignature(txSignature string) (*models.PresaleBid, error) {
	var bid models.PresaleBid
	err := d.DB.Where("tx_signature = ?", txSignature).First(&bid).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

func (d *Database) SumBids(presaleID uint) (uint64, error) {
	var total uint64
	err := d.DB.Model(&models.PresaleBid{}).
		Where("presale_id = ?", presaleID).
		Select("COALESCE(SUM(amount), 0)").Scan(&total).Error
	return total, err
}

func (d *Database) SumBidsByWallet(presaleID uint, walletAddress string) (uint64, error) {
	var total uint64
	err := d.DB.Model(&models.PresaleBid{}).
		Where("presale_id = ? AND wallet_address = ?", presaleID, walletAddress).
		Select("COALESCE(SUM(amount), 0)").Scan(&total).Error
	return total, err
}

func (d *Database) ListBidWallets(presaleID uint) ([]string, error) {
	var wallets []string
	err := d.DB.Model(&models.PresaleBid{}).
		Where("presale_id = ?", presaleID).
		Distinct("wallet_address").Pluck("wallet_address", &wallets).Error
	return wallets, err
}

// Presale claim operations

func (d *Database) CreatePresaleClaim(claim *models.PresaleClaim) error {
	return d.DB.Create(claim).Error
}

// GetPresaleClaim returns nil without error when no allocation row exists.
func (d *Database) GetPresaleClaim(presaleID uint, walletAddress string) (*models.PresaleClaim, error) {
	var claim models.PresaleClaim
	err := d.DB.Where("presale_id = ? AND wallet_address = ?", presaleID, walletAddress).First(&claim).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

// RecordPresaleWithdrawal appends the audit row and increments the claimed
// total in one transaction so a replayed signature can never double-count.
func (d *Database) RecordPresaleWithdrawal(claimID uint, tx *models.PresaleClaimTransaction) error {
	return d.DB.Transaction(func(db *gorm.DB) error {
		if err := db.Create(tx).Error; err != nil {
			return err
		}
		return db.Model(&models.PresaleClaim{}).Where("id = ?", claimID).Updates(map[string]interface{}{
			"tokens_claimed":  gorm.Expr("tokens_claimed + ?", tx.Amount),
			"last_claimed_at": tx.ConfirmedAt,
		}).Error
	})
}

// GetPresaleClaimTransactionBySignature returns nil without error when the
// signature has not been recorded.
func (d *Database) GetPresaleClaimTransactionBySignature(txSignature string) (*models.PresaleClaimTransaction, error) {
	var tx models.PresaleClaimTransaction
	err := d.DB.Where("tx_signature = ?", txSignature).First(&tx).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}
