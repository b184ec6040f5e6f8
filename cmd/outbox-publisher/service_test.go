package main

import (
	"context"
	"errors"
	"io"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/rohanmalik/merakistore-backend/pkg/config"
	"github.com/rohanmalik/merakistore-backend/pkg/db/models"
	"github.com/rohanmalik/merakistore-backend/pkg/enums"
	"github.com/rohanmalik/merakistore-backend/pkg/logger"
)

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	fetchErr  error
}

func (f *fakeRepo) FetchUnpublished(limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if limit < len(f.events) {
		return f.events[:limit], nil
	}
	return f.events, nil
}

func (f *fakeRepo) MarkPublished(id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailed(id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(ctx context.Context) (string, error) {
	return "server-id", f.err
}

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
}

func (f *fakePublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return fakePublishResult{}
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type healthyDep struct{}

func (healthyDep) Ping(ctx context.Context) error { return nil }

func newTestService(t *testing.T, repo outboxRepository, pub publisher) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Config:     &config.Config{},
		Logger:     logger.New(logger.Options{ServiceName: "outbox-test", Output: io.Discard}),
		DB:         healthyDep{},
		PubSub:     healthyDep{},
		Repository: repo,
		Publisher:  pub,
	})
	if err != nil {
		t.Fatalf("building service: %v", err)
	}
	return service
}

func orderEvent(payload string) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.OutboxEventOrderCreated,
		AggregateType: enums.OutboxAggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       []byte(payload),
	}
}

func TestProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			orderEvent(`{"seq":1}`),
			orderEvent(`{"seq":2}`),
		},
	}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
			fakePublishResult{},
		},
	}
	service := newTestService(t, repo, pub)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(repo.failed); got != 1 {
		t.Fatalf("unexpected number of failed rows: %d", got)
	}
	if repo.failed[0] != repo.events[0].ID {
		t.Fatalf("failed row recorded wrong ID")
	}
	if got := len(repo.published); got != 1 {
		t.Fatalf("unexpected number of published rows: %d", got)
	}
	if repo.published[0] != repo.events[1].ID {
		t.Fatalf("published row recorded wrong ID")
	}
}

func TestProcessBatchCarriesEventAttributes(t *testing.T) {
	event := orderEvent(`{"orderNumber":"MK-20260815-DEADBEEF"}`)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{}
	service := newTestService(t, repo, pub)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one published message, got %d", len(pub.messages))
	}
	msg := pub.messages[0]
	if string(msg.Data) != `{"orderNumber":"MK-20260815-DEADBEEF"}` {
		t.Fatalf("unexpected message data: %s", msg.Data)
	}
	if msg.Attributes["event_type"] != string(enums.OutboxEventOrderCreated) {
		t.Fatalf("unexpected event_type attribute: %s", msg.Attributes["event_type"])
	}
	if msg.Attributes["aggregate_id"] != event.AggregateID.String() {
		t.Fatalf("unexpected aggregate_id attribute: %s", msg.Attributes["aggregate_id"])
	}
}

func TestProcessBatchIdlesOnEmptyOutbox(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{}
	service := newTestService(t, repo, pub)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if processed {
		t.Fatalf("expected idle batch")
	}
	if len(pub.messages) != 0 {
		t.Fatalf("expected no publishes")
	}
}
