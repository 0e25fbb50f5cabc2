package mq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/cronkeeper/internal/domain"
)

func sampleJob() domain.Job {
	ts := time.Date(2026, 5, 1, 2, 0, 0, 0, time.UTC)
	return domain.Job{
		ID:         uuid.New(),
		Name:       "nightly-backup",
		Expression: "0 2 * * *",
		Command:    "tar czf /backup/db.tgz /data",
		Enabled:    true,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
}

func TestNewMessage(t *testing.T) {
	event := domain.NewJobEvent(domain.EventJobCreated, sampleJob())
	msg := NewMessage(event)

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, domain.EventJobCreated, msg.Type)
	assert.Equal(t, event.OccurredAt, msg.Timestamp)
}

func TestDecodeEvent(t *testing.T) {
	job := sampleJob()
	body, err := json.Marshal(NewMessage(domain.NewJobEvent(domain.EventJobDisabled, job)))
	require.NoError(t, err)

	event, id, err := DecodeEvent(body)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, domain.EventJobDisabled, event.Type)
	assert.Equal(t, job.ID, event.Job.ID)
	assert.Equal(t, job.Name, event.Job.Name)
	assert.True(t, job.CreatedAt.Equal(event.Job.CreatedAt))
}

func TestDecodeEvent_Invalid(t *testing.T) {
	_, _, err := DecodeEvent([]byte("{"))
	assert.Error(t, err)

	_, _, err = DecodeEvent([]byte(`{"id":"x","payload":{}}`))
	assert.Error(t, err)
}

func TestConsumer_HandleDelivery(t *testing.T) {
	var got []domain.JobEvent
	c := NewConsumer(nil, slog.New(slog.NewTextHandler(io.Discard, nil)), ConsumerConfig{
		Handler: func(_ context.Context, e domain.JobEvent) error {
			got = append(got, e)
			return errors.New("ignored")
		},
	})
	assert.Equal(t, RoutingKeyAllJobs, c.pattern)

	body, err := json.Marshal(NewMessage(domain.NewJobEvent(domain.EventJobImported, sampleJob())))
	require.NoError(t, err)

	c.handleDelivery(context.Background(), []byte("garbage"))
	c.handleDelivery(context.Background(), body)

	require.Len(t, got, 1)
	assert.Equal(t, domain.EventJobImported, got[0].Type)
}
