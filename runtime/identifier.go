package runtime

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"

	"github.com/samber/lo"
)

const (
	sessionIDLength   = 6
	sessionIDAttempts = 10
)

var sessionIDCharset = append(append([]rune{}, lo.LowerCaseLettersCharset...), lo.NumbersCharset...)

// IdentifierGenerator draws short lowercase alphanumeric session ids.
// Ids are meant to be shared by hand: 36^6 values make blind enumeration
// impractical at the expected session count, but the source is not a
// cryptographic one and an id must not be treated as a secret.
type IdentifierGenerator struct {
	length   int
	attempts int
	random   func(size int, charset []rune) string
}

func NewIdentifierGenerator() *IdentifierGenerator {
	return &IdentifierGenerator{
		length:   sessionIDLength,
		attempts: sessionIDAttempts,
		random:   lo.RandomString,
	}
}

// Generate returns an id for which exists reports false,
// or ErrIdentifierExhausted after the bounded number of attempts.
func (g *IdentifierGenerator) Generate(exists func(domain.SessionID) bool) (domain.SessionID, error) {
	for i := 0; i < g.attempts; i++ {
		id := domain.SessionID(g.random(g.length, sessionIDCharset))
		if !exists(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", errors.ErrIdentifierExhausted, g.attempts)
}
