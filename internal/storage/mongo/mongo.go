// mongo реализует storage.EventStorage: журнал событий безопасности
// (входы, ротации, replay, logout) в коллекции MongoDB с TTL-индексом.
package mongo

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/pribylovaa/carelink-auth/internal/models"
	"github.com/pribylovaa/carelink-auth/internal/storage"
)

const (
	eventsCollection = "security_events"
	defaultDBName    = "auth_audit"

	// DefaultRetention — сколько хранится событие до удаления TTL-индексом.
	DefaultRetention = 180 * 24 * time.Hour
)

// Events — тонкий адаптер журнала поверх MongoDB.
type Events struct {
	client    *mongodriver.Client
	events    *mongodriver.Collection
	retention time.Duration
}

// event — документ коллекции security_events.
type event struct {
	ID        string    `bson:"_id"`
	Kind      string    `bson:"kind"`
	UserID    string    `bson:"user_id,omitempty"`
	JTI       string    `bson:"jti,omitempty"`
	RequestID string    `bson:"request_id,omitempty"`
	Detail    string    `bson:"detail,omitempty"`
	At        time.Time `bson:"at"`
}

// New подключается к MongoDB, проверяет соединение и создаёт индексы.
// Имя БД берётся из пути URI (mongodb://host/<db>), иначе auth_audit.
func New(ctx context.Context, uri string, retention time.Duration) (*Events, error) {
	const op = "storage.mongo.New"

	if uri == "" {
		return nil, fmt.Errorf("%s: empty uri", op)
	}

	if retention <= 0 {
		retention = DefaultRetention
	}

	cli, err := mongodriver.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := cli.Ping(ctx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("%s: ping: %w: %w", op, storage.ErrUnavailable, err)
	}

	e := &Events{
		client:    cli,
		events:    cli.Database(databaseFromURI(uri)).Collection(eventsCollection),
		retention: retention,
	}

	if err := e.ensureIndexes(ctx); err != nil {
		_ = e.Close(context.Background())
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return e, nil
}

// Close отключает клиента.
func (e *Events) Close(ctx context.Context) error {
	return e.client.Disconnect(ctx)
}

// ensureIndexes:
// - TTL по at (expireAfterSeconds = retention);
// - выборка истории пользователя: user_id + at(desc);
// - выборка по виду события: kind + at(desc).
func (e *Events) ensureIndexes(ctx context.Context) error {
	idx := []mongodriver.IndexModel{
		{
			Keys:    bson.D{{Key: "at", Value: 1}},
			Options: options.Index().SetName("ttl_at").SetExpireAfterSeconds(int32(e.retention / time.Second)),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "at", Value: -1}},
			Options: options.Index().SetName("user_at_desc"),
		},
		{
			Keys:    bson.D{{Key: "kind", Value: 1}, {Key: "at", Value: -1}},
			Options: options.Index().SetName("kind_at_desc"),
		},
	}

	if _, err := e.events.Indexes().CreateMany(ctx, idx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	return nil
}

// SaveEvent добавляет событие в журнал. Повтор того же ID игнорируется.
func (e *Events) SaveEvent(ctx context.Context, ev *models.SecurityEvent) error {
	const op = "storage.mongo.SaveEvent"

	_, err := e.events.InsertOne(ctx, toDocument(ev))
	if err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return nil
		}

		if mongodriver.IsNetworkError(err) || mongodriver.IsTimeout(err) {
			return fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func toDocument(ev *models.SecurityEvent) event {
	return event{
		ID:        ev.ID,
		Kind:      string(ev.Kind),
		UserID:    ev.UserID,
		JTI:       ev.JTI,
		RequestID: ev.RequestID,
		Detail:    ev.Detail,
		At:        ev.At.UTC(),
	}
}

// databaseFromURI извлекает имя базы данных из пути URI mongodb.
func databaseFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err == nil {
		if name := strings.Trim(u.Path, "/"); name != "" {
			return name
		}
	}

	return defaultDBName
}

var _ storage.EventStorage = (*Events)(nil)
