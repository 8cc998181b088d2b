package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"epic_events/crm_api/lifecycle"
	"epic_events/utils/logging"

	"github.com/google/uuid"
)

const subjectPrefix = "crm"

type Notification struct {
	Id        string    `json:"id"`
	Subject   string    `json:"subject"`
	Entity    string    `json:"entity"`
	EntityId  uint      `json:"entity_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ActorId   uint      `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
}

func Subject(entity, to string) string {
	return fmt.Sprintf("%v.%v.%v", subjectPrefix, entity, to)
}

func FromTransition(t lifecycle.Transition, actorId uint) Notification {
	return Notification{
		Id:        uuid.NewString(),
		Subject:   Subject(t.Entity, t.To),
		Entity:    t.Entity,
		EntityId:  t.EntityId,
		From:      t.From,
		To:        t.To,
		ActorId:   actorId,
		Timestamp: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(n Notification) error

	Close()
}

// LogPublisher is used when no message broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(n Notification) error {
	slog.Info("lifecycle notification", "code", logging.LIFECYCLE, "subject", n.Subject, "entity_id", n.EntityId, "from", n.From, "to", n.To, "actor_id", n.ActorId, "notification_id", n.Id)
	return nil
}

func (LogPublisher) Close() {}

// RecordingPublisher keeps every notification in memory.
type RecordingPublisher struct {
	mu            sync.Mutex
	notifications []Notification
}

func (p *RecordingPublisher) Publish(n Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifications = append(p.notifications, n)
	return nil
}

func (p *RecordingPublisher) Close() {}

func (p *RecordingPublisher) Notifications() []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Notification(nil), p.notifications...)
}

func (p *RecordingPublisher) Subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	subjects := make([]string, 0, len(p.notifications))
	for _, n := range p.notifications {
		subjects = append(subjects, n.Subject)
	}
	return subjects
}
