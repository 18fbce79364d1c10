package persona

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clierr "github.com/kelreel/sonichash/internal/errors"
)

func TestCanAccess(t *testing.T) {
	public := &Persona{Visibility: VisibilityPublic, OwnerID: "u1"}
	private := &Persona{Visibility: VisibilityPrivate, OwnerID: "u1"}

	assert.True(t, CanAccess(public, nil))
	assert.True(t, CanAccess(private, &Caller{ID: "u1"}))
	assert.False(t, CanAccess(private, &Caller{ID: "u2"}))
	assert.False(t, CanAccess(private, nil))
	assert.False(t, CanAccess(&Persona{Visibility: VisibilityPrivate}, &Caller{}))
	assert.False(t, CanAccess(nil, &Caller{ID: "u1"}))
}

func TestSplitLinesDropsBlankLines(t *testing.T) {
	assert.Equal(t, Lines{"one", "two"}, SplitLines("one\n\n  \ntwo\n"))
	assert.Nil(t, SplitLines(""))
}

func writePersona(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestFileStoreGetAndList(t *testing.T) {
	dir := t.TempDir()
	writePersona(t, dir, "sonic.yaml", `name: Sonic Sage
bio: |
  Trader since 2017.

  Loves fast chains.
lore:
  - Survived three bear markets
  - ""
visibility: private
owner_id: u1
provide_price_data: true
`)
	writePersona(t, dir, "anon.yaml", "name: Anon\n")

	store := NewFileStore(dir)
	p, err := store.Get(context.Background(), "sonic")
	require.NoError(t, err)
	assert.Equal(t, "sonic", p.ID)
	assert.Equal(t, Lines{"Trader since 2017.", "Loves fast chains."}, p.Bio)
	assert.Equal(t, Lines{"Survived three bear markets"}, p.Lore)
	assert.Equal(t, VisibilityPrivate, p.Visibility)
	assert.True(t, p.ProvidePriceData)
	assert.False(t, p.ProvidePortfolioData)

	all, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "anon", all[0].ID)
	assert.Equal(t, VisibilityPublic, all[0].Visibility)
}

func TestFileStoreGetErrors(t *testing.T) {
	store := NewFileStore(t.TempDir())
	_, err := store.Get(context.Background(), "missing")
	assert.Equal(t, clierr.CodeNotFound, clierr.CodeOf(err))

	_, err = store.Get(context.Background(), "../etc/passwd")
	assert.Equal(t, clierr.CodeUsage, clierr.CodeOf(err))
}
