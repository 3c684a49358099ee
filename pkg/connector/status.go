package connector

import (
	"context"
	"time"

	"github.com/picogrid/legion-connector/pkg/logger"
	"github.com/picogrid/legion-connector/pkg/metrics"
	"github.com/picogrid/legion-connector/pkg/models"
)

// IntegrationUpdater patches the integration record of the connector.
type IntegrationUpdater interface {
	UpdateIntegration(ctx context.Context, update models.IntegrationUpdate) error
}

// StatusPublisher reports the connector status on the integration. Publishing is
// best-effort: failures are logged and never returned.
type StatusPublisher struct {
	platform   IntegrationUpdater
	externalID string
	metrics    *metrics.Metrics
	log        logger.Logger
}

// NewStatusPublisher creates a publisher for the given integration.
func NewStatusPublisher(platform IntegrationUpdater, integrationExternalID string, m *metrics.Metrics) *StatusPublisher {
	return &StatusPublisher{
		platform:   platform,
		externalID: integrationExternalID,
		metrics:    m,
		log:        logger.WithPrefix("status"),
	}
}

// PublishStatus sets the connector status, e.g. models.ConnectorStatusIdle.
func (p *StatusPublisher) PublishStatus(ctx context.Context, status string) {
	p.metrics.SetStatus(status)

	now := time.Now().UnixMilli()
	err := p.platform.UpdateIntegration(ctx, models.IntegrationUpdate{
		ExternalID:      p.externalID,
		ConnectorStatus: &status,
		Heartbeat:       &now,
	})
	if err != nil {
		p.log.Warnf("Failed to publish connector status %s: %v", status, err)
	}
}
