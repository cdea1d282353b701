// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package fake

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mia-platform/transfer/internal/source"
)

func TestFakePagedSource(t *testing.T) {
	t.Parallel()

	firstPage := []source.Data{
		{Type: "1", Operation: source.DataOperationUpsert, Values: map[string]any{"key": "value"}},
		{Type: "2", Operation: source.DataOperationDelete, Values: map[string]any{"key": "value"}},
	}
	secondPage := []source.Data{
		{Type: "3", Operation: source.DataOperationUpsert, Values: map[string]any{"key": "value"}},
	}

	fakeSource := NewFakePagedSource(t, firstPage, secondPage)

	page, err := fakeSource.Load(t.Context(), "")
	require.NoError(t, err)
	assert.Equal(t, firstPage, page.Data)
	assert.Equal(t, "1", page.ResumeToken)

	page, err = fakeSource.Load(t.Context(), page.ResumeToken)
	require.NoError(t, err)
	assert.Equal(t, secondPage, page.Data)
	assert.Empty(t, page.ResumeToken)

	_, err = fakeSource.Load(t.Context(), "7")
	assert.Error(t, err)

	assert.Equal(t, []string{"", "1", "7"}, fakeSource.Tokens())

	assert.False(t, fakeSource.Closed())
	require.NoError(t, fakeSource.Close(t.Context(), time.Second))
	assert.True(t, fakeSource.Closed())
}

func TestFakePagedSourceEmpty(t *testing.T) {
	t.Parallel()

	page, err := NewFakePagedSource(t).Load(t.Context(), "")
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.Empty(t, page.ResumeToken)
}

func TestFakePagedSourceErrors(t *testing.T) {
	t.Parallel()

	_, err := NewFakePagedSourceWithError(t, assert.AnError).Load(t.Context(), "")
	assert.ErrorIs(t, err, assert.AnError)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = NewFakePagedSource(t, nil).Load(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}
