package storage

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/oklog/ulid/v2"

	"DigestPipeline/internal/domain"
	"DigestPipeline/internal/ports"
)

// ErrRecipientNotFound is returned by writes that reference an unknown recipient.
var ErrRecipientNotFound = errors.New("recipient not found")

// SQLiteRepository persists recipients, subscriptions and delivery history.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ ports.RecipientStore = (*SQLiteRepository)(nil)

// NewSQLiteRepository wires an opened database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func newID(at time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
}

// GetRecipient returns nil, nil when the recipient does not exist.
func (r *SQLiteRepository) GetRecipient(ctx context.Context, id string) (*domain.Recipient, error) {
	query, args, err := sq.Select("id", "name", "email", "phone", "telegram_id").
		From("recipients").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recipient query: %w", err)
	}

	var (
		rec                    domain.Recipient
		email, phone, telegram sql.NullString
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&rec.ID, &rec.Name, &email, &phone, &telegram)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query recipient: %w", err)
	}

	rec.Addresses = map[domain.ChannelName]string{}
	for channel, v := range map[domain.ChannelName]sql.NullString{
		domain.ChannelMail:     email,
		domain.ChannelWhatsApp: phone,
		domain.ChannelTelegram: telegram,
	} {
		if v.Valid && v.String != "" {
			rec.Addresses[channel] = v.String
		}
	}
	return &rec, nil
}

// GetTopics lists a recipient's topics in subscription order.
func (r *SQLiteRepository) GetTopics(ctx context.Context, recipientID string) ([]domain.Topic, error) {
	query, args, err := sq.Select("t.id", "t.name", "t.description").
		From("recipient_topics rt").
		Join("topics t ON t.id = rt.topic_id").
		Where(sq.Eq{"rt.recipient_id": recipientID}).
		OrderBy("rt.position", "t.name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build topics query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var topics []domain.Topic
	for rows.Next() {
		var (
			t    domain.Topic
			desc sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Name, &desc); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		t.Description = desc.String
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return topics, nil
}

// SaveDeliveryRecord appends a delivery to the history.
func (r *SQLiteRepository) SaveDeliveryRecord(ctx context.Context, recipientID, title string, topics []string, channel string) (domain.DeliveryRecord, error) {
	if topics == nil {
		topics = []string{}
	}
	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return domain.DeliveryRecord{}, fmt.Errorf("marshal topics: %w", err)
	}

	now := r.now().UTC()
	record := domain.DeliveryRecord{
		ID:          newID(now),
		RecipientID: recipientID,
		Title:       title,
		Topics:      topics,
		Channel:     channel,
		SentAt:      now.Truncate(time.Millisecond),
	}

	query, args, err := sq.Insert("deliveries").
		Columns("id", "recipient_id", "title", "topics_json", "channel", "sent_at").
		Values(record.ID, recipientID, title, string(topicsJSON), channel, now.UnixMilli()).
		ToSql()
	if err != nil {
		return domain.DeliveryRecord{}, fmt.Errorf("build delivery insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return domain.DeliveryRecord{}, fmt.Errorf("insert delivery: %w", err)
	}
	return record, nil
}

// UpsertRecipient creates or updates a recipient; an empty ID gets a fresh ULID.
func (r *SQLiteRepository) UpsertRecipient(ctx context.Context, rec domain.Recipient) (domain.Recipient, error) {
	now := r.now().UTC()
	if rec.ID == "" {
		rec.ID = newID(now)
	}

	query, args, err := sq.Insert("recipients").
		Columns("id", "name", "email", "phone", "telegram_id", "created_at").
		Values(rec.ID, rec.Name,
			nullable(rec.Address(domain.ChannelMail)),
			nullable(rec.Address(domain.ChannelWhatsApp)),
			nullable(rec.Address(domain.ChannelTelegram)),
			now.UnixMilli()).
		Suffix("ON CONFLICT(id) DO UPDATE SET name = excluded.name, email = excluded.email, " +
			"phone = excluded.phone, telegram_id = excluded.telegram_id").
		ToSql()
	if err != nil {
		return domain.Recipient{}, fmt.Errorf("build recipient upsert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return domain.Recipient{}, fmt.Errorf("upsert recipient: %w", err)
	}
	return rec, nil
}

// Subscribe attaches a topic (created on first use) to the end of the recipient's list.
// Subscribing twice is a no-op.
func (r *SQLiteRepository) Subscribe(ctx context.Context, recipientID, topicName, description string) (domain.Topic, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Topic{}, fmt.Errorf("begin subscribe: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM recipients WHERE id = ?", recipientID).Scan(&exists); err != nil {
		return domain.Topic{}, fmt.Errorf("check recipient: %w", err)
	}
	if exists == 0 {
		return domain.Topic{}, fmt.Errorf("subscribe %s: %w", recipientID, ErrRecipientNotFound)
	}

	insertTopic, args, err := sq.Insert("topics").
		Columns("id", "name", "description").
		Values(newID(r.now()), topicName, nullable(description)).
		Suffix("ON CONFLICT(name) DO UPDATE SET description = COALESCE(excluded.description, topics.description)").
		ToSql()
	if err != nil {
		return domain.Topic{}, fmt.Errorf("build topic insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertTopic, args...); err != nil {
		return domain.Topic{}, fmt.Errorf("insert topic: %w", err)
	}

	topic := domain.Topic{Name: topicName}
	var desc sql.NullString
	if err := tx.QueryRowContext(ctx, "SELECT id, description FROM topics WHERE name = ?", topicName).Scan(&topic.ID, &desc); err != nil {
		return domain.Topic{}, fmt.Errorf("load topic: %w", err)
	}
	topic.Description = desc.String

	link, args, err := sq.Insert("recipient_topics").
		Columns("recipient_id", "topic_id", "position").
		Select(sq.Select("?", "?", "COALESCE(MAX(position), 0) + 1").
			From("recipient_topics").
			Where(sq.Eq{"recipient_id": recipientID})).
		Suffix("ON CONFLICT(recipient_id, topic_id) DO NOTHING").
		ToSql()
	if err != nil {
		return domain.Topic{}, fmt.Errorf("build subscription insert: %w", err)
	}
	args = append([]any{recipientID, topic.ID}, args...)
	if _, err := tx.ExecContext(ctx, link, args...); err != nil {
		return domain.Topic{}, fmt.Errorf("insert subscription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Topic{}, fmt.Errorf("commit subscribe: %w", err)
	}
	return topic, nil
}

// ListRecipientIDs returns every recipient in creation order.
func (r *SQLiteRepository) ListRecipientIDs(ctx context.Context) ([]string, error) {
	query, args, err := sq.Select("id").From("recipients").OrderBy("created_at", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recipients query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recipients: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return ids, nil
}

// ListDeliveries returns the newest deliveries first. An empty recipientID lists all recipients.
func (r *SQLiteRepository) ListDeliveries(ctx context.Context, recipientID string, limit int) ([]domain.DeliveryRecord, error) {
	builder := sq.Select("id", "recipient_id", "title", "topics_json", "channel", "sent_at").
		From("deliveries").
		OrderBy("sent_at DESC", "id DESC")
	if recipientID != "" {
		builder = builder.Where(sq.Eq{"recipient_id": recipientID})
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build deliveries query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	var records []domain.DeliveryRecord
	for rows.Next() {
		var (
			rec        domain.DeliveryRecord
			topicsJSON string
			sentAt     int64
		)
		if err := rows.Scan(&rec.ID, &rec.RecipientID, &rec.Title, &topicsJSON, &rec.Channel, &sentAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		if err := json.Unmarshal([]byte(topicsJSON), &rec.Topics); err != nil {
			return nil, fmt.Errorf("decode topics of %s: %w", rec.ID, err)
		}
		rec.SentAt = time.UnixMilli(sentAt).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return records, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
