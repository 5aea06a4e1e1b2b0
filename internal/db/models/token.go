package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TokenStatus tracks single-use refresh semantics.
type TokenStatus string

const (
	TokenStatusUnused TokenStatus = "unused"
	TokenStatusUsed   TokenStatus = "used"
)

// TokenPair is an issued access/refresh token record. Refresh tokens are
// single-use: exchanging one flips Status unused -> used via a
// compare-and-set update, never a plain write.
type TokenPair struct {
	bun.BaseModel `bun:"table:token_pairs,alias:tp"`

	ID           string      `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	AccessToken  string      `bun:"access_token,notnull,unique,type:text"`
	RefreshToken string      `bun:"refresh_token,notnull,unique,type:text"`
	Status       TokenStatus `bun:"status,notnull,type:varchar(10)"`
	UserID       string      `bun:"user_id,notnull,type:uuid"`
	Username     string      `bun:"username,notnull"`
	Domain       string      `bun:"domain,notnull"`
	IP           string      `bun:"ip"`
	Address      string      `bun:"address"`
	UserAgent    string      `bun:"user_agent"`
	RequestID    string      `bun:"request_id"`
	Type         string      `bun:"type"` // e.g. "web", "cli", "service"
	Port         *int        `bun:"port"`
	CreatedBy    string      `bun:"created_by,notnull"`
	CreatedAt    time.Time   `bun:"created_at,notnull,default:current_timestamp"`
}
