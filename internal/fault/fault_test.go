package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Transport("connect", nil))
	assert.NoError(t, Integration("create review", nil))
	assert.NoError(t, Identity("lookup", nil))
}

func TestKindOf(t *testing.T) {
	base := errors.New("boom")

	err := fmt.Errorf("stage: %w", Transport("invoke sonarqube", base))
	assert.Equal(t, KindTransport, KindOf(err))
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "transport: invoke sonarqube: boom")

	assert.Equal(t, KindIntegration, KindOf(base))
}

func TestErrorWithoutOp(t *testing.T) {
	err := Integration("", errors.New("disk full"))
	require.Error(t, err)
	assert.Equal(t, "integration: disk full", err.Error())
}

func TestFatal(t *testing.T) {
	assert.True(t, KindTransport.Fatal())
	assert.True(t, KindIntegration.Fatal())
	assert.False(t, KindIdentity.Fatal())
	assert.False(t, KindSelection.Fatal())
}
