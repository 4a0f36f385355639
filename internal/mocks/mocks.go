package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"groupchat-client/internal/models"
	"groupchat-client/internal/session"
)

type HistoryFetcherMock struct {
	mock.Mock
}

func (m *HistoryFetcherMock) FetchMessages(ctx context.Context, groupID string, skip, limit int) ([]models.GroupChatMessage, error) {
	args := m.Called(ctx, groupID, skip, limit)
	var msgs []models.GroupChatMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.GroupChatMessage)
	}
	return msgs, args.Error(1)
}

var _ session.HistoryFetcher = (*HistoryFetcherMock)(nil)
