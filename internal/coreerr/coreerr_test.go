package coreerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapAndClassify(t *testing.T) {
	base := errors.New("no credits")
	wrapped := Wrap(KindInsufficient, base)
	assert.Equal(t, KindInsufficient, ClassifyKind(wrapped))
	assert.Equal(t, "upgrade", Action(ClassifyKind(wrapped)))
	assert.True(t, errors.Is(wrapped, base) || errors.Unwrap(wrapped) == base)
}

func TestClassifyUnknown(t *testing.T) {
	assert.Equal(t, KindUnknown, ClassifyKind(errors.New("plain")))
}

func TestWrapPreservesWrappingChain(t *testing.T) {
	base := errors.New("boom")
	wrapped := Wrap(KindProviderError, fmt.Errorf("call failed: %w", base))
	assert.Equal(t, KindProviderError, ClassifyKind(wrapped))
	assert.ErrorIs(t, wrapped, base)
}
