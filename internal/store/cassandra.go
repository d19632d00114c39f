package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/nelsonmaranda/tubonge-chat-app/internal/config"
	"github.com/nelsonmaranda/tubonge-chat-app/internal/domain"
)

// conversationKey partitions all messages of the single shared conversation.
const conversationKey = "main"

// CassandraStore persists messages to the messages_by_conversation table:
//
//	CREATE TABLE messages_by_conversation (
//	    conversation text,
//	    message_id timeuuid,
//	    sender_id text,
//	    sender_username text,
//	    content text,
//	    created_at timestamp,
//	    PRIMARY KEY ((conversation), message_id)
//	) WITH CLUSTERING ORDER BY (message_id DESC);
type CassandraStore struct {
	session *gocql.Session
}

// NewCassandraStore establishes the Cassandra session. Failure here is fatal
// to startup; per-request errors later are not.
func NewCassandraStore(cfg config.CassandraConfig) (*CassandraStore, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = parseConsistency(cfg.Consistency)
	cluster.ConnectTimeout = cfg.ConnectTimeout
	cluster.Timeout = cfg.Timeout

	if cfg.Username != "" && cfg.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        2 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create cassandra session: %w", err)
	}

	return &CassandraStore{session: session}, nil
}

func (s *CassandraStore) Create(ctx context.Context, sender domain.Identity, content string, createdAt time.Time) (string, error) {
	id := gocql.TimeUUID()

	query := `
		INSERT INTO messages_by_conversation (
			conversation, message_id, sender_id, sender_username, content, created_at
		) VALUES (?, ?, ?, ?, ?, ?)`

	err := s.session.Query(query,
		conversationKey,
		id,
		sender.ID,
		sender.Username,
		content,
		createdAt,
	).WithContext(ctx).Exec()
	if err != nil {
		return "", fmt.Errorf("failed to save message: %w", err)
	}

	return id.String(), nil
}

func (s *CassandraStore) ReadBack(ctx context.Context, id string) (*domain.ChatMessage, error) {
	messageID, err := gocql.ParseUUID(id)
	if err != nil {
		return nil, fmt.Errorf("invalid message id %q: %w", id, err)
	}

	query := `
		SELECT message_id, sender_id, sender_username, content, created_at
		FROM messages_by_conversation
		WHERE conversation = ? AND message_id = ?`

	var msg domain.ChatMessage
	var createdAt time.Time
	err = s.session.Query(query, conversationKey, messageID).
		WithContext(ctx).
		Scan(&msg.ID, &msg.Sender.ID, &msg.Sender.Username, &msg.Content, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to read back message %s: %w", id, err)
	}

	msg.Timestamp = createdAt
	return &msg, nil
}

func (s *CassandraStore) ListRecent(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	query := `
		SELECT message_id, sender_id, sender_username, content, created_at
		FROM messages_by_conversation
		WHERE conversation = ?
		ORDER BY message_id DESC
		LIMIT ?`

	iter := s.session.Query(query, conversationKey, limit).WithContext(ctx).Iter()

	var messages []domain.ChatMessage
	var msg domain.ChatMessage
	var createdAt time.Time

	for iter.Scan(&msg.ID, &msg.Sender.ID, &msg.Sender.Username, &msg.Content, &createdAt) {
		msg.Timestamp = createdAt
		messages = append(messages, msg)
		msg = domain.ChatMessage{}
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}

	// Rows come back newest first; replay data is served oldest first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (s *CassandraStore) Close() {
	if s.session != nil {
		s.session.Close()
	}
}

func parseConsistency(s string) gocql.Consistency {
	switch strings.ToUpper(s) {
	case "ANY":
		return gocql.Any
	case "ONE":
		return gocql.One
	case "TWO":
		return gocql.Two
	case "QUORUM":
		return gocql.Quorum
	case "ALL":
		return gocql.All
	case "LOCAL_ONE":
		return gocql.LocalOne
	case "LOCAL_QUORUM":
		return gocql.LocalQuorum
	default:
		return gocql.LocalQuorum
	}
}
