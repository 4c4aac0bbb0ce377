package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/apperr"
)

const (
	joinCodePrefix = "SEC_"
	joinCodeLength = 12
	joinAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// DefaultJoinCodeAttempts bounds collision retries when issuing a code.
	DefaultJoinCodeAttempts = 10
)

var joinCodeRe = regexp.MustCompile(`^SEC_[A-Za-z0-9]{12}$`)

// ErrJoinCodeExhausted is returned when every generated code collided.
var ErrJoinCodeExhausted = apperr.Conflict("could not generate a unique join code, please try again")

// IsJoinCode reports whether s has the deep-link join code shape.
func IsJoinCode(s string) bool { return joinCodeRe.MatchString(s) }

// codeSource yields candidate codes; tests replace it.
type codeSource func() (string, error)

func randomJoinCode() (string, error) {
	buf := make([]byte, 0, len(joinCodePrefix)+joinCodeLength)
	buf = append(buf, joinCodePrefix...)
	base := big.NewInt(int64(len(joinAlphabet)))
	for i := 0; i < joinCodeLength; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("join code: %w", err)
		}
		buf = append(buf, joinAlphabet[n.Int64()])
	}
	return string(buf), nil
}

// issueJoinCode draws codes until one is free in store.
func issueJoinCode(ctx context.Context, store sectionStore, next codeSource, attempts int) (string, error) {
	if attempts <= 0 {
		attempts = DefaultJoinCodeAttempts
	}
	for i := 0; i < attempts; i++ {
		code, err := next()
		if err != nil {
			return "", apperr.Internal(err)
		}
		taken, err := store.JoinCodeExists(ctx, code)
		if err != nil {
			return "", apperr.Internal(err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrJoinCodeExhausted
}
