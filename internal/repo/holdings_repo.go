// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides read-only queries over the holdings
// and instrument price tables maintained by the portfolio CRUD subsystem.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/averla/portfolio-ai-backend/internal/domain"
)

// ListHoldings returns an account's positions as of the given date
// (YYYY-MM-DD). When no snapshot exists for that exact date, the most
// recent snapshot on or before it is returned, so weekend/holiday dates
// still resolve to real positions.
func ListHoldings(ctx context.Context, db *gorm.DB, accountID int64, date string) ([]domain.Holding, error) {
	var snapshotDate string
	err := db.WithContext(ctx).
		Model(&domain.Holding{}).
		Select("as_of").
		Where("account_id = ? AND as_of <= ?", accountID, date).
		Order("as_of DESC").
		Limit(1).
		Scan(&snapshotDate).Error
	if err != nil {
		return nil, err
	}
	if snapshotDate == "" {
		return []domain.Holding{}, nil
	}

	var out []domain.Holding
	err = db.WithContext(ctx).
		Where("account_id = ? AND as_of = ?", accountID, snapshotDate).
		Order("value DESC").
		Find(&out).Error
	return out, err
}

// ListPrices returns daily closes for ticker within [from, to], ascending
// by date.
func ListPrices(ctx context.Context, db *gorm.DB, ticker, from, to string) ([]domain.InstrumentPrice, error) {
	var out []domain.InstrumentPrice
	err := db.WithContext(ctx).
		Where("ticker = ? AND date >= ? AND date <= ?", ticker, from, to).
		Order("date ASC").
		Find(&out).Error
	return out, err
}
