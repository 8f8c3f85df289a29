package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Be1newinner/asaan-hai-coding/internal/content"
)

type fakeChannel struct {
	declared   []string
	published  []amqp.Publishing
	keys       []string
	publishErr error
	closed     bool
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if !durable {
		return amqp.Queue{}, errors.New("queue must be durable")
	}
	f.declared = append(f.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func strp(s string) *string { return &s }

func sampleLead() *content.Lead {
	l := &content.Lead{Name: "Asha", Email: strp("asha@example.com"), Subject: strp("Course"), Message: strp("secret details")}
	l.ID = uuid.New()
	l.CreatedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return l
}

func TestLeadCreatedPublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	dials := 0
	p := newPublisher("leads.created", func() (channel, io.Closer, error) {
		dials++
		return ch, nopCloser{}, nil
	})

	lead := sampleLead()
	if err := p.LeadCreated(context.Background(), lead); err != nil {
		t.Fatalf("LeadCreated: %v", err)
	}
	if err := p.LeadCreated(context.Background(), lead); err != nil {
		t.Fatalf("LeadCreated: %v", err)
	}
	if dials != 1 || len(ch.declared) != 1 || ch.declared[0] != "leads.created" {
		t.Fatalf("expected one dial and declare, got dials=%d declared=%v", dials, ch.declared)
	}
	msg := ch.published[0]
	if msg.DeliveryMode != amqp.Persistent || msg.ContentType != "application/json" || ch.keys[0] != "leads.created" {
		t.Fatalf("unexpected publishing: %+v key=%s", msg, ch.keys[0])
	}
	var body map[string]any
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["id"] != lead.ID.String() || body["email"] != "asha@example.com" || body["phone"] != nil {
		t.Fatalf("unexpected body: %v", body)
	}
	if _, ok := body["message"]; ok {
		t.Fatalf("message text must not be published")
	}
}

func TestPublishFailureRedialsNextTime(t *testing.T) {
	broken := &fakeChannel{publishErr: errors.New("channel closed")}
	healthy := &fakeChannel{}
	channels := []*fakeChannel{broken, healthy}
	p := newPublisher("q", func() (channel, io.Closer, error) {
		ch := channels[0]
		channels = channels[1:]
		return ch, nopCloser{}, nil
	})

	if err := p.LeadCreated(context.Background(), sampleLead()); err == nil {
		t.Fatalf("expected publish error")
	}
	if !broken.closed {
		t.Fatalf("failed channel should be closed")
	}
	if err := p.LeadCreated(context.Background(), sampleLead()); err != nil {
		t.Fatalf("second publish: %v", err)
	}
	if len(healthy.published) != 1 {
		t.Fatalf("expected the redialed channel to publish")
	}
}

func TestDialFailureIsReturned(t *testing.T) {
	p := newPublisher("q", func() (channel, io.Closer, error) {
		return nil, nil, errors.New("connection refused")
	})
	if err := p.LeadCreated(context.Background(), sampleLead()); err == nil {
		t.Fatalf("expected dial error")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
