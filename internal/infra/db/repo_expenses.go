package db

import (
	"context"

	"medgate/internal/domain"

	"gorm.io/gorm"
)

type ExpenseRepository struct {
	db *gorm.DB
}

func NewExpenseRepository(db *gorm.DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

func (r *ExpenseRepository) ListByIdentification(ctx context.Context, identificationNumber string, afterID int64, limit int) ([]domain.Expense, error) {
	if r == nil || r.db == nil {
		return nil, errDBUnavailable
	}
	var models []ExpenseModel
	err := r.db.WithContext(ctx).
		Where("identification_number = ? AND id > ?", identificationNumber, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Expense, 0, len(models))
	for _, m := range models {
		out = append(out, domain.Expense{
			ID:                   m.ID,
			IdentificationNumber: m.IdentificationNumber,
			ProviderName:         m.ProviderName,
			ServiceDate:          m.ServiceDate,
			Concept:              m.Concept,
			InvoicedAmount:       m.InvoicedAmount,
			CoveredAmount:        m.CoveredAmount,
			Currency:             m.Currency,
			Status:               m.Status,
		})
	}
	return out, nil
}
