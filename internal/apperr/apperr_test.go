package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := New(KindNotFound, "session %q not found", "s1")
	wrapped := fmt.Errorf("get status: %w", base)

	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, &Error{Kind: KindNotFound}))
	assert.False(t, errors.Is(wrapped, &Error{Kind: KindPathEscape}))
	assert.Equal(t, `session "s1" not found`, Message(wrapped))
}

func TestUpstreamKeepsStatus(t *testing.T) {
	err := fmt.Errorf("list: %w", Upstream(403, "rate limited"))
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.Equal(t, 403, StatusOf(err))
}

func TestPlainErrorsAreInternal(t *testing.T) {
	err := errors.New("boom /secret/path")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "internal error", Message(err))
}
