package usecase

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"

	"medgate/internal/domain"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// ExpenseService pages through the expense records of an already-authorized
// identification number. skipToken is an opaque cursor over the expense row
// id.
type ExpenseService struct {
	repo domain.ExpenseRepository
}

func NewExpenseService(repo domain.ExpenseRepository) *ExpenseService {
	return &ExpenseService{repo: repo}
}

func (s *ExpenseService) List(ctx context.Context, identificationNumber, skipToken string, top int) (domain.ExpensePage, error) {
	if top <= 0 {
		top = defaultPageSize
	}
	if top > maxPageSize {
		top = maxPageSize
	}
	afterID, err := decodeSkipToken(skipToken)
	if err != nil {
		return domain.ExpensePage{}, err
	}

	// Fetch one extra row to learn whether another page exists.
	items, err := s.repo.ListByIdentification(ctx, identificationNumber, afterID, top+1)
	if err != nil {
		return domain.ExpensePage{}, err
	}

	page := domain.ExpensePage{Items: items}
	if len(items) > top {
		page.Items = items[:top]
		page.NextSkipToken = encodeSkipToken(page.Items[top-1].ID)
	}
	return page, nil
}

func encodeSkipToken(lastID int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(lastID, 10)))
}

func decodeSkipToken(token string) (int64, error) {
	if token == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid skipToken", domain.ErrMalformedRequest)
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%w: invalid skipToken", domain.ErrMalformedRequest)
	}
	return id, nil
}
