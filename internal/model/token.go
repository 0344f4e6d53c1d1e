package model

import "time"

// AccountToken authorises the creation of one new account. Minting a token
// consumes one unit of the minter's invitation inventory.
//
// Only a bcrypt hash of the secret is stored; the plaintext form
// "<id>.<secret>" is handed out once, when the token is minted.
type AccountToken struct {
	ID         string     `json:"id"`
	CreatedBy  string     `json:"createdBy"`
	SecretHash string     `json:"-"`
	CreatedAt  time.Time  `json:"createdAt"`
	UsedBy     string     `json:"usedBy,omitempty"`
	UsedAt     *time.Time `json:"usedAt,omitempty"`
}

func (t *AccountToken) Used() bool {
	return t.UsedAt != nil
}
