package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDocumentStatus(t *testing.T) {
	require.True(t, StatusIndexed.Terminal())
	require.True(t, StatusFailed.Terminal())
	require.False(t, StatusPending.Terminal())
	require.False(t, StatusProcessing.Terminal())

	require.True(t, StatusPending.Valid())
	require.False(t, DocumentStatus("archived").Valid())
}
