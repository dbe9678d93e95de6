package auth

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gdbrns/go-whatsapp-pair-session/pkg/env"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/log"
)

const ticketIssuer = "whatsapp-pair-session"

var ErrInvalidTicket = errors.New("invalid or expired session ticket")

// TicketClaims binds a status stream subscription to exactly one pairing session.
type TicketClaims struct {
	SessionID string `json:"sid"`
	Mode      string `json:"mode"`
	jwt.RegisteredClaims
}

// Tickets signs and verifies observer tickets with HS256.
type Tickets struct {
	secret []byte
	ttl    time.Duration
}

// DefaultTickets is configured from PAIR_TICKET_SECRET / PAIR_TICKET_TTL.
var DefaultTickets *Tickets

func init() {
	ttl := env.GetEnvDurationOrDefault("PAIR_TICKET_TTL", 15*time.Minute)
	secret, err := env.GetEnvString("PAIR_TICKET_SECRET")
	if err != nil {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			panic("unable to generate ticket secret: " + err.Error())
		}
		log.Print(nil).Warn("PAIR_TICKET_SECRET not set, tickets will not survive a restart")
		DefaultTickets = NewTickets(buf, ttl)
		return
	}
	DefaultTickets = NewTickets([]byte(secret), ttl)
}

func NewTickets(secret []byte, ttl time.Duration) *Tickets {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Tickets{secret: secret, ttl: ttl}
}

// Issue creates a ticket for sessionID.
func (t *Tickets) Issue(sessionID string, mode string) (string, error) {
	if len(t.secret) == 0 {
		return "", errors.New("ticket secret not configured")
	}

	now := time.Now()
	claims := TicketClaims{
		SessionID: sessionID,
		Mode:      mode,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ticketIssuer,
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Validate returns the claims of a valid, unexpired ticket.
func (t *Tickets) Validate(tokenString string) (*TicketClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidTicket
	}

	token, err := jwt.ParseWithClaims(tokenString, &TicketClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return t.secret, nil
	}, jwt.WithIssuer(ticketIssuer))
	if err != nil {
		return nil, ErrInvalidTicket
	}

	claims, ok := token.Claims.(*TicketClaims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, ErrInvalidTicket
	}
	return claims, nil
}
