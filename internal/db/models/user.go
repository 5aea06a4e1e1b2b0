package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User is the minimal identity row the policy core looks up during password
// login. Role/domain/menu administration beyond this lookup is out of scope.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           string     `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Username     string     `bun:"username,notnull,unique"`
	Email        string     `bun:"email,unique"`
	PhoneNumber  string     `bun:"phone_number,unique"`
	Domain       string     `bun:"domain,notnull,default:'default'"`
	PasswordHash string     `bun:"password_hash,notnull"` // bcrypt hash
	Enabled      bool       `bun:"enabled,notnull,default:true"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
	LastLoginAt  *time.Time `bun:"last_login_at"`
}
