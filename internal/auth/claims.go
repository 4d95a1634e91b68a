package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for the dialer API.
// AgentID identifies the calling seat; it keys the agent's session and
// becomes the voice client identity.
type Claims struct {
	jwt.RegisteredClaims

	AgentID   string    `json:"agent_id"`
	TeamID    string    `json:"team_id,omitempty"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}
