package mastermind

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsEmptyRemotes(t *testing.T) {
	_, err := New(Options{}, nil, nil)
	require.ErrorIs(t, err, ErrRemotesEmpty)
}
