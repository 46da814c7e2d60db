package db

import "time"

type ExpenseModel struct {
	ID                   int64     `gorm:"column:id;primaryKey"`
	IdentificationNumber string    `gorm:"column:identification_number;index"`
	ProviderName         string    `gorm:"column:provider_name"`
	ServiceDate          time.Time `gorm:"column:service_date"`
	Concept              string    `gorm:"column:concept"`
	InvoicedAmount       float64   `gorm:"column:invoiced_amount"`
	CoveredAmount        float64   `gorm:"column:covered_amount"`
	Currency             string    `gorm:"column:currency"`
	Status               string    `gorm:"column:status"`
}

func (ExpenseModel) TableName() string { return "medical_expenses" }
