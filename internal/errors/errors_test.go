package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrappingPreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := SourceFetchf(cause, "fetching project %s", "AAPRFE")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "AAPRFE")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIsMatchesOnType(t *testing.T) {
	err := fmt.Errorf("outer: %w", Constraintf(nil, "duplicate key"))
	assert.True(t, stderrors.Is(err, &Error{Type: TypeConstraint}))
	assert.False(t, stderrors.Is(err, &Error{Type: TypePairing}))
}

func TestFatality(t *testing.T) {
	assert.True(t, IsFatal(Migrationf(nil, "constraint create failed")))
	assert.True(t, IsFatal(Configf("missing neo4j uri")))
	assert.False(t, IsFatal(SourceFetchf(nil, "rate limited")))
	assert.False(t, IsFatal(Pairingf(nil, "half-created pair")))
	assert.False(t, IsFatal(stderrors.New("plain")))
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, TypePairing, TypeOf(Pairingf(nil, "x")))
	assert.Equal(t, TypeInternal, TypeOf(stderrors.New("plain")))
}
