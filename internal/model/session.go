package model

import "time"

// DeviceSession is one authenticated browser or device for a user. Its ID is
// the correlation key embedded in the session token; deleting the record is
// the authoritative revocation signal for that token.
type DeviceSession struct {
	ID             string    `bson:"_id" json:"sessionId"`
	UserID         string    `bson:"userId" json:"userId"`
	IP             string    `bson:"ip" json:"ip"`
	UserAgent      string    `bson:"userAgent" json:"userAgent"`
	CreatedAt      time.Time `bson:"createdAt" json:"createdAt"`
	LastAccessedAt time.Time `bson:"lastAccessedAt" json:"lastAccessedAt"`

	// IsCurrent is set on listing reads when the record matches the caller's
	// own token. Never persisted.
	IsCurrent bool `bson:"-" json:"isCurrent"`
}

// Fingerprint groups sessions that came from the same place. Two records for
// one user with equal fingerprints are duplicates; only the most recently
// accessed survives a listing read.
func (s *DeviceSession) Fingerprint() string {
	return s.IP + "|" + s.UserAgent
}
