package fidotypes

import "time"

// Credential is a registered public-key credential in the shape external
// credential stores consume. The module produces and reads this type but
// never persists it.
type Credential struct {
	ID              []byte     `json:"id"`
	RPID            string     `json:"rpId"`
	UserID          []byte     `json:"userId"`
	UserName        string     `json:"userName"`
	UserDisplayName string     `json:"userDisplayName"`
	PublicKey       []byte     `json:"publicKey"`
	Counter         uint32     `json:"counter"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastUsed        *time.Time `json:"lastUsed,omitempty"`
}
