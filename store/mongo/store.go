// Package mongo is the MongoDB queue.Store. A partial unique index on
// isRunning keeps the store itself from ever holding two running sessions.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mongod "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"hospital-portal/models"
	"hospital-portal/queue"
)

// Collection name constants.
const (
	colSessions = "queue_sessions"
	colHistory  = "queue_history"
	colDrafts   = "queue_drafts"

	draftID = "draft"
)

var _ queue.Store = (*Store)(nil)

var running = bson.M{"isRunning": true}

type draftDoc struct {
	ID                 string `bson:"_id"`
	models.RosterDraft `bson:",inline"`
}

// Store persists queue state in three collections of one database.
type Store struct {
	client       *mongod.Client
	db           *mongod.Database
	transactions bool
	timeout      time.Duration
	logger       *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithTransactions runs delete-then-insert on start inside a transaction.
// Requires a replica set; standalone servers rely on the unique index.
func WithTransactions(enabled bool) Option {
	return func(s *Store) { s.transactions = enabled }
}

// WithTimeout bounds every store round trip.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New returns a Store on db. The caller owns the client lifecycle.
func New(client *mongod.Client, db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		client:  client,
		db:      db,
		timeout: 5 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the indexes the store relies on.
func (s *Store) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.Collection(colSessions).Indexes().CreateOne(ctx, mongod.IndexModel{
		Keys: bson.D{{Key: "isRunning", Value: 1}},
		Options: options.Index().
			SetName("one_running_session").
			SetUnique(true).
			SetPartialFilterExpression(running),
	})
	if err != nil {
		return fmt.Errorf("queue/mongo: migrate %s indexes: %w", colSessions, err)
	}

	_, err = s.db.Collection(colHistory).Indexes().CreateOne(ctx, mongod.IndexModel{
		Keys:    bson.D{{Key: "endTime", Value: -1}},
		Options: options.Index().SetName("end_time_desc"),
	})
	if err != nil {
		return fmt.Errorf("queue/mongo: migrate %s indexes: %w", colHistory, err)
	}
	return nil
}

// ActiveSession returns the running session, or nil when idle.
func (s *Store) ActiveSession(ctx context.Context) (*models.ActiveSession, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var session models.ActiveSession
	opts := options.FindOne().SetSort(bson.D{{Key: "lastUpdated", Value: -1}})
	err := s.db.Collection(colSessions).FindOne(ctx, running, opts).Decode(&session)
	if errors.Is(err, mongod.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue/mongo: find active session: %w", err)
	}
	return &session, nil
}

// ReplaceActive deletes every running record and inserts session. Without
// transactions the deleted records are put back when the insert fails, so a
// failed start leaves the previous session running.
func (s *Store) ReplaceActive(ctx context.Context, session *models.ActiveSession) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if !s.transactions {
		return s.replaceRestoring(ctx, session)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("queue/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongod.SessionContext) (interface{}, error) {
		col := s.db.Collection(colSessions)
		if _, err := col.DeleteMany(sc, running); err != nil {
			return nil, fmt.Errorf("queue/mongo: delete running sessions: %w", err)
		}
		return nil, insertActive(sc, col, session)
	})
	return err
}

func (s *Store) replaceRestoring(ctx context.Context, session *models.ActiveSession) error {
	col := s.db.Collection(colSessions)

	cursor, err := col.Find(ctx, running)
	if err != nil {
		return fmt.Errorf("queue/mongo: find running sessions: %w", err)
	}
	var previous []models.ActiveSession
	if err := cursor.All(ctx, &previous); err != nil {
		return fmt.Errorf("queue/mongo: decode running sessions: %w", err)
	}

	if _, err := col.DeleteMany(ctx, running); err != nil {
		return fmt.Errorf("queue/mongo: delete running sessions: %w", err)
	}

	insertErr := insertActive(ctx, col, session)
	if insertErr == nil || len(previous) == 0 {
		return insertErr
	}

	// ctx may be the reason the insert failed.
	rctx, rcancel := context.WithTimeout(context.Background(), s.timeout)
	defer rcancel()
	docs := make([]interface{}, len(previous))
	for i := range previous {
		docs[i] = previous[i]
	}
	if _, err := col.InsertMany(rctx, docs); err != nil {
		s.logger.Error("restore running session failed",
			slog.String("session_id", previous[0].ID),
			slog.String("error", err.Error()),
		)
	}
	return insertErr
}

func insertActive(ctx context.Context, col *mongod.Collection, session *models.ActiveSession) error {
	if _, err := col.InsertOne(ctx, session); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return fmt.Errorf("queue/mongo: concurrent start: %w", queue.ErrForbidden)
		}
		return fmt.Errorf("queue/mongo: insert active session: %w", err)
	}
	return nil
}

// UpdateActive overwrites the running record with session.ID.
func (s *Store) UpdateActive(ctx context.Context, session *models.ActiveSession) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	filter := bson.M{"_id": session.ID, "isRunning": true}
	res, err := s.db.Collection(colSessions).ReplaceOne(ctx, filter, session)
	if err != nil {
		return fmt.Errorf("queue/mongo: update active session: %w", err)
	}
	if res.MatchedCount == 0 {
		return queue.ErrSessionNotFound
	}
	return nil
}

// DeleteRunning removes every running record.
func (s *Store) DeleteRunning(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.Collection(colSessions).DeleteMany(ctx, running)
	if err != nil {
		return 0, fmt.Errorf("queue/mongo: delete running sessions: %w", err)
	}
	if res.DeletedCount > 1 {
		s.logger.Warn("deleted more than one running session", slog.Int64("count", res.DeletedCount))
	}
	return res.DeletedCount, nil
}

// Draft returns the stored draft roster, or nil.
func (s *Store) Draft(ctx context.Context) (*models.RosterDraft, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc draftDoc
	err := s.db.Collection(colDrafts).FindOne(ctx, bson.M{"_id": draftID}).Decode(&doc)
	if errors.Is(err, mongod.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue/mongo: find draft roster: %w", err)
	}
	return &doc.RosterDraft, nil
}

// SaveDraft upserts the draft roster.
func (s *Store) SaveDraft(ctx context.Context, d *models.RosterDraft) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc := draftDoc{ID: draftID, RosterDraft: *d}
	_, err := s.db.Collection(colDrafts).ReplaceOne(ctx, bson.M{"_id": draftID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("queue/mongo: save draft roster: %w", err)
	}
	return nil
}

// AppendHistory records a finished session.
func (s *Store) AppendHistory(ctx context.Context, h *models.SessionHistory) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.Collection(colHistory).InsertOne(ctx, h); err != nil {
		return fmt.Errorf("queue/mongo: insert session history: %w", err)
	}
	return nil
}

// ListHistory returns up to limit entries, newest first.
func (s *Store) ListHistory(ctx context.Context, limit int) ([]models.SessionHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "endTime", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.db.Collection(colHistory).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("queue/mongo: find session history: %w", err)
	}
	defer cursor.Close(ctx)

	history := []models.SessionHistory{}
	if err := cursor.All(ctx, &history); err != nil {
		return nil, fmt.Errorf("queue/mongo: decode session history: %w", err)
	}
	return history, nil
}
