package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/toolhub-crawler/internal/audit"
	"github.com/JakeFAU/toolhub-crawler/internal/crawler"
)

func TestTargetStoreRegistrationOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	log := audit.NewMemoryLog()
	store := NewTargetStore(log)
	admin := crawler.Audit{Actor: "admin"}

	a, err := store.AddTarget(ctx, crawler.Target{URL: "https://B.example/toolinfo.json", Owner: "bob"}, admin)
	require.NoError(t, err)
	require.Equal(t, "https://b.example/toolinfo.json", a.URL)
	require.Equal(t, int64(1), a.ID)
	require.False(t, a.CreatedAt.IsZero())

	_, err = store.AddTarget(ctx, crawler.Target{URL: "https://a.example/toolinfo.json", Owner: "alice"}, admin)
	require.NoError(t, err)

	_, err = store.AddTarget(ctx, crawler.Target{URL: "https://b.example:443/toolinfo.json"}, admin)
	require.ErrorIs(t, err, crawler.ErrTargetExists)

	_, err = store.AddTarget(ctx, crawler.Target{URL: "gopher://b.example"}, admin)
	require.ErrorIs(t, err, crawler.ErrInvalidTargetURL)

	targets, err := store.ListTargets(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"https://b.example/toolinfo.json", "https://a.example/toolinfo.json"},
		[]string{targets[0].URL, targets[1].URL})

	require.NoError(t, store.RemoveTarget(ctx, "https://B.example/toolinfo.json", admin))
	require.ErrorIs(t, store.RemoveTarget(ctx, "https://b.example/toolinfo.json", admin), crawler.ErrTargetNotFound)

	targets, err = store.ListTargets(ctx)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	require.Equal(t, "alice", targets[0].Owner)

	entries := log.ForKind(audit.KindCrawlTarget)
	require.Len(t, entries, 3)
	require.Equal(t, audit.ActionDelete, entries[2].Action)
}
