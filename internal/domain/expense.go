package domain

import (
	"context"
	"time"
)

type Expense struct {
	ID                   int64
	IdentificationNumber string
	ProviderName         string
	ServiceDate          time.Time
	Concept              string
	InvoicedAmount       float64
	CoveredAmount        float64
	Currency             string
	Status               string
}

type ExpensePage struct {
	Items         []Expense
	NextSkipToken string
}

type ExpenseRepository interface {
	// ListByIdentification returns expenses for the identification number
	// ordered by id, starting after afterID, at most limit rows.
	ListByIdentification(ctx context.Context, identificationNumber string, afterID int64, limit int) ([]Expense, error)
}
