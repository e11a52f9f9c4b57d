// Package search answers substring queries over usernames.
package search

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"chat-engine/internal/models"
	"chat-engine/internal/store"
)

// Index is a read-only view over the account store with a fixed page size.
type Index struct {
	store    store.AccountStore
	pageSize int
}

// New constructs Index.
func New(s store.AccountStore, pageSize int) *Index {
	return &Index{store: s, pageSize: pageSize}
}

// PageSize is the number of matches per page.
func (i *Index) PageSize() int { return i.pageSize }

// Usernames returns the page-th page of accounts whose username contains
// pattern, ignoring case and never including excludeID.
func (i *Index) Usernames(ctx context.Context, pattern string, page int, excludeID string) (models.Page[models.PublicAccount], error) {
	offset, err := models.PageOffset(page, i.pageSize)
	if err != nil {
		return models.Page[models.PublicAccount]{}, err
	}
	accs, total, err := i.store.SearchAccounts(ctx, pattern, excludeID, offset, i.pageSize)
	if err != nil {
		return models.Page[models.PublicAccount]{}, fmt.Errorf("search accounts: %w", err)
	}
	items := lo.Map(accs, func(a models.Account, _ int) models.PublicAccount { return a.Public() })
	return models.NewPage(items, page, i.pageSize, total), nil
}
