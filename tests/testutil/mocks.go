package testutil

import (
	"context"

	"github.com/confhall/cfp-engine/internal/models"
	"github.com/confhall/cfp-engine/internal/services"
	"github.com/stretchr/testify/mock"
)

// MockMailer mocks the services.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg services.Email) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockWebhookPoster mocks the services.WebhookPoster
type MockWebhookPoster struct {
	mock.Mock
}

func (m *MockWebhookPoster) Post(ctx context.Context, webhookURL string, msg services.SlackMessage) error {
	args := m.Called(ctx, webhookURL, msg)
	return args.Error(0)
}

// MockNotifier mocks the services.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) ProposalSubmitted(ctx context.Context, event *models.Event, proposal *models.Proposal) {
	m.Called(ctx, event, proposal)
}

func (m *MockNotifier) ProposalAnswered(ctx context.Context, event *models.Event, proposal *models.Proposal) {
	m.Called(ctx, event, proposal)
}
