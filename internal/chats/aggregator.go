// Package chats derives the recent-chats view from the message store.
package chats

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"

	"chat-engine/internal/models"
	"chat-engine/internal/store"
)

// Aggregator builds per-peer summaries on read. Nothing it returns is stored.
type Aggregator struct {
	messages store.MessageStore
	accounts store.AccountStore
}

// New constructs Aggregator.
func New(messages store.MessageStore, accounts store.AccountStore) *Aggregator {
	return &Aggregator{messages: messages, accounts: accounts}
}

// Recent returns page of accountID's conversations, newest activity first,
// ties broken by peer id.
func (a *Aggregator) Recent(ctx context.Context, accountID string, page, size int) (models.Page[models.ChatSummary], error) {
	offset, err := models.PageOffset(page, size)
	if err != nil {
		return models.Page[models.ChatSummary]{}, err
	}

	latest, err := a.messages.LatestPerPeer(ctx, accountID)
	if err != nil {
		return models.Page[models.ChatSummary]{}, fmt.Errorf("latest messages: %w", err)
	}
	summaries := lo.Map(latest, func(m models.Message, _ int) models.ChatSummary {
		return models.SummaryFor(accountID, m)
	})
	sortSummaries(summaries)

	total := len(summaries)
	window := lo.Subset(summaries, offset, uint(size))
	if err := a.enrich(ctx, accountID, window); err != nil {
		return models.Page[models.ChatSummary]{}, err
	}
	return models.NewPage(window, page, size, total), nil
}

func (a *Aggregator) enrich(ctx context.Context, accountID string, window []models.ChatSummary) error {
	if len(window) == 0 {
		return nil
	}
	peers, err := a.accounts.GetAccounts(ctx, lo.Map(window, func(s models.ChatSummary, _ int) string { return s.PeerID }))
	if err != nil {
		return fmt.Errorf("peer accounts: %w", err)
	}
	names := lo.SliceToMap(peers, func(acc models.Account) (string, string) { return acc.ID, acc.Username })

	for i := range window {
		window[i].PeerUsername = names[window[i].PeerID]
		n, err := a.messages.UnreadCount(ctx, accountID, window[i].PeerID)
		if err != nil {
			return fmt.Errorf("unread count: %w", err)
		}
		window[i].UnreadCount = n
	}
	return nil
}

func sortSummaries(s []models.ChatSummary) {
	sort.Slice(s, func(i, j int) bool {
		ti, tj := s[i].LastMessage.CreatedAt, s[j].LastMessage.CreatedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return s[i].PeerID < s[j].PeerID
	})
}
