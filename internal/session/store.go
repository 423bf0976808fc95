// Package session persists one record per authenticated device. The record's
// disappearance is the sole revocation signal the token lifecycle observes:
// there is no separate revocation list.
package session

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/helioshop/helioshop/internal/model"
)

var (
	// ErrNotFound is returned when a session does not exist or does not
	// belong to the named user.
	ErrNotFound = errors.New("session not found")
	// ErrUnavailable wraps store-level failures.
	ErrUnavailable = errors.New("session store unavailable")
)

// Current identifies the caller's own session during a listing read, so the
// matching record can be flagged and reconciled.
type Current struct {
	SessionID string
	IP        string
	UserAgent string
}

// Store is the device-session persistence contract. The Mongo implementation
// is authoritative; tests substitute an in-memory fake.
type Store interface {
	// Create inserts a fresh record and appends its identifier to the user's
	// sessions collection in the same logical operation.
	Create(ctx context.Context, userID, ip, userAgent string) (*model.DeviceSession, error)
	// Exists reports whether the record is still live. Any store error is
	// returned so callers can fail closed.
	Exists(ctx context.Context, sessionID string) (bool, error)
	// Devices returns the user's sessions, reconciled, deduplicated, sorted
	// by last access descending, with the caller's own record flagged.
	Devices(ctx context.Context, userID string, current Current) ([]model.DeviceSession, error)
	// Touch refreshes lastAccessedAt. Failures are non-fatal for callers.
	Touch(ctx context.Context, sessionID string) error
	// Remove deletes the record and pulls it from the owning user's sessions
	// collection. ErrNotFound if the session is not in the user's collection.
	Remove(ctx context.Context, userID, sessionID string) error
	// RemoveByID removes a session without knowing its owner up front
	// (admin path). ErrNotFound if no such record exists.
	RemoveByID(ctx context.Context, sessionID string) error
	// ListAll returns every live session in the system (admin-of-admins).
	ListAll(ctx context.Context) ([]model.DeviceSession, error)
}

// MongoStore implements Store on the users + devicesessions collections.
type MongoStore struct {
	users    *mongo.Collection
	sessions *mongo.Collection
	now      func() time.Time
}

// NewMongoStore wires the store over the two collections.
func NewMongoStore(users, sessions *mongo.Collection) *MongoStore {
	return &MongoStore{users: users, sessions: sessions, now: time.Now}
}

func (s *MongoStore) Create(ctx context.Context, userID, ip, userAgent string) (*model.DeviceSession, error) {
	return s.createWithID(ctx, uuid.NewString(), userID, ip, userAgent)
}

// createWithID preserves an externally chosen identifier so a still-valid
// token keeps its correlation after reconciliation.
func (s *MongoStore) createWithID(ctx context.Context, id, userID, ip, userAgent string) (*model.DeviceSession, error) {
	now := s.now()
	rec := &model.DeviceSession{
		ID:             id,
		UserID:         userID,
		IP:             ip,
		UserAgent:      userAgent,
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	if _, err := s.sessions.InsertOne(ctx, rec); err != nil {
		return nil, wrapStoreErr(err)
	}

	// Appending to the user document is a second, non-transactional write.
	// If it fails the next listing read reconciles; the login itself must
	// not fail on it.
	if err := s.pushUserSession(ctx, userID, id); err != nil {
		log.Printf("session: could not append %s to user %s, deferring to reconciliation: %v", id, userID, err)
	}

	return rec, nil
}

func (s *MongoStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	err := s.sessions.FindOne(ctx, bson.M{"_id": sessionID}).Err()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	return false, wrapStoreErr(err)
}

func (s *MongoStore) Devices(ctx context.Context, userID string, current Current) ([]model.DeviceSession, error) {
	records, err := s.liveSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	if current.SessionID != "" && !containsID(records, current.SessionID) {
		rec, err := s.reconcile(ctx, userID, current, records)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}

	keep, stale := prune(records)
	for _, id := range stale {
		if err := s.Remove(ctx, userID, id); err != nil && !errors.Is(err, ErrNotFound) {
			log.Printf("session: duplicate prune of %s failed: %v", id, err)
		}
	}

	sortByLastAccess(keep)
	for i := range keep {
		keep[i].IsCurrent = keep[i].ID == current.SessionID
		if keep[i].IsCurrent {
			if err := s.Touch(ctx, keep[i].ID); err != nil {
				log.Printf("session: touch of %s failed: %v", keep[i].ID, err)
			} else {
				keep[i].LastAccessedAt = s.now()
			}
		}
	}
	return keep, nil
}

func (s *MongoStore) Touch(ctx context.Context, sessionID string) error {
	res, err := s.sessions.UpdateOne(ctx,
		bson.M{"_id": sessionID},
		bson.M{"$set": bson.M{"lastAccessedAt": s.now()}},
	)
	if err != nil {
		return wrapStoreErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Remove(ctx context.Context, userID, sessionID string) error {
	// Pull from the user's collection first: a zero modified count means the
	// session was never this user's, which blocks cross-user removal.
	pulled, err := s.pullUserSession(ctx, userID, sessionID)
	if err != nil {
		return err
	}

	res, err := s.sessions.DeleteOne(ctx, bson.M{"_id": sessionID, "userId": userID})
	if err != nil {
		return wrapStoreErr(err)
	}
	if !pulled && res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) RemoveByID(ctx context.Context, sessionID string) error {
	var rec model.DeviceSession
	err := s.sessions.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return wrapStoreErr(err)
	}
	return s.Remove(ctx, rec.UserID, sessionID)
}

func (s *MongoStore) ListAll(ctx context.Context) ([]model.DeviceSession, error) {
	cur, err := s.sessions.Find(ctx, bson.M{})
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	var records []model.DeviceSession
	if err := cur.All(ctx, &records); err != nil {
		return nil, wrapStoreErr(err)
	}
	sortByLastAccess(records)
	return records, nil
}

// liveSessions unions the identifiers on the user document with the records
// referencing the user, repairing either side of a transient divergence.
func (s *MongoStore) liveSessions(ctx context.Context, userID string) ([]model.DeviceSession, error) {
	ids, err := s.userSessionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	cur, err := s.sessions.Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	var records []model.DeviceSession
	if err := cur.All(ctx, &records); err != nil {
		return nil, wrapStoreErr(err)
	}

	known := make(map[string]bool, len(records))
	for _, rec := range records {
		known[rec.ID] = true
	}

	// Records missing from the user document get re-appended best-effort.
	for _, rec := range records {
		if !containsString(ids, rec.ID) {
			if err := s.pushUserSession(ctx, userID, rec.ID); err != nil {
				log.Printf("session: re-append of %s to user %s failed: %v", rec.ID, userID, err)
			}
		}
	}
	// Identifiers with no backing record get dropped from the user document.
	for _, id := range ids {
		if !known[id] {
			if _, err := s.pullUserSession(ctx, userID, id); err != nil {
				log.Printf("session: drop of dangling %s from user %s failed: %v", id, userID, err)
			}
		}
	}

	return records, nil
}

// reconcile runs the three-tier fallback when the caller's token references
// a session that no longer resolves: recreate under the exact identifier,
// then adopt a fingerprint match, then create fresh only for a sessionless
// user. An authenticated request must never be left without a resolvable
// session indefinitely.
func (s *MongoStore) reconcile(ctx context.Context, userID string, current Current, existing []model.DeviceSession) (*model.DeviceSession, error) {
	rec, err := s.createWithID(ctx, current.SessionID, userID, current.IP, current.UserAgent)
	if err == nil {
		return rec, nil
	}
	// A concurrent login can have raced the recreation; either way we fall
	// through to the fingerprint tier.
	log.Printf("session: exact-id recreation of %s failed: %v", current.SessionID, err)

	for i := range existing {
		if existing[i].IP == current.IP && existing[i].UserAgent == current.UserAgent {
			return nil, nil // fingerprint match already in the listing
		}
	}

	if len(existing) == 0 {
		fresh, err := s.Create(ctx, userID, current.IP, current.UserAgent)
		if err != nil {
			return nil, err
		}
		return fresh, nil
	}
	return nil, nil
}

func (s *MongoStore) userSessionIDs(ctx context.Context, userID string) ([]string, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, ErrNotFound
	}
	var doc struct {
		Sessions []string `bson:"sessions"`
	}
	err = s.users.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, wrapStoreErr(err)
	}
	return doc.Sessions, nil
}

func (s *MongoStore) pushUserSession(ctx context.Context, userID, sessionID string) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return ErrNotFound
	}
	_, err = s.users.UpdateByID(ctx, oid, bson.M{
		"$addToSet": bson.M{"sessions": sessionID},
		"$set":      bson.M{"updatedAt": s.now()},
	})
	if err != nil {
		return wrapStoreErr(err)
	}
	return nil
}

func (s *MongoStore) pullUserSession(ctx context.Context, userID, sessionID string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return false, ErrNotFound
	}
	res, err := s.users.UpdateByID(ctx, oid, bson.M{
		"$pull": bson.M{"sessions": sessionID},
		"$set":  bson.M{"updatedAt": s.now()},
	})
	if err != nil {
		return false, wrapStoreErr(err)
	}
	return res.ModifiedCount > 0, nil
}

func wrapStoreErr(err error) error {
	return errors.Join(ErrUnavailable, err)
}
