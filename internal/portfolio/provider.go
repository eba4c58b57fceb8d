// Package portfolio exposes read-only portfolio data behind a small
// Provider interface so tools and services can be tested against fakes.
// The production implementation reads the holdings and price tables kept
// current by the ingestion side of the platform.
package portfolio

import (
	"context"

	"gorm.io/gorm"

	"github.com/averla/portfolio-ai-backend/internal/domain"
	"github.com/averla/portfolio-ai-backend/internal/repo"
)

// Provider supplies portfolio data for one account.
type Provider interface {
	// GetHoldings returns positions as of date (YYYY-MM-DD), falling back
	// to the most recent prior snapshot. An empty slice means no data.
	GetHoldings(ctx context.Context, accountID int64, date string) ([]domain.Holding, error)

	// GetPriceHistory returns ascending daily closes for ticker in [from, to].
	GetPriceHistory(ctx context.Context, ticker, from, to string) ([]domain.InstrumentPrice, error)
}

// DBProvider is the GORM-backed Provider.
type DBProvider struct {
	db *gorm.DB
}

// NewDBProvider returns a Provider reading from db.
func NewDBProvider(db *gorm.DB) *DBProvider {
	return &DBProvider{db: db}
}

// GetHoldings implements Provider.
func (p *DBProvider) GetHoldings(ctx context.Context, accountID int64, date string) ([]domain.Holding, error) {
	return repo.ListHoldings(ctx, p.db, accountID, date)
}

// GetPriceHistory implements Provider.
func (p *DBProvider) GetPriceHistory(ctx context.Context, ticker, from, to string) ([]domain.InstrumentPrice, error) {
	return repo.ListPrices(ctx, p.db, ticker, from, to)
}
