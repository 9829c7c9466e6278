package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/sameday-sync/internal/catalog"
)

func TestClassifyIsDeterministic(t *testing.T) {
	repo := catalog.NewMemoryRepository()
	c := New(repo, nil, nil, nil)
	ctx := context.Background()

	first, err := c.Classify(ctx, "Swedish Massage 60min")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "Massage", first.Name)

	second, err := c.Classify(ctx, "Swedish Massage 60min")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.Categories(), 1)
}

func TestMatchTable(t *testing.T) {
	c := New(nil, nil, nil, nil)
	cases := []struct {
		name string
		want string
	}{
		{"DEEP TISSUE 90", "Massage"},
		{"Brow Lamination", "Brows & Lashes"},
		{"Gel Manicure", "Nails"},
		{"Signature HydraFacial", "Facials"},
		{"Women's Haircut", "Hair"},
		{"Chair Massage", "Massage"},
		{"Brazilian Wax", "Waxing"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule, ok := c.Match(tc.name)
			require.True(t, ok)
			assert.Equal(t, tc.want, rule.Category)
		})
	}
}

func TestClassifyNoMatchReturnsNil(t *testing.T) {
	repo := catalog.NewMemoryRepository()
	c := New(repo, nil, nil, nil)
	cat, err := c.Classify(context.Background(), "Consultation")
	require.NoError(t, err)
	assert.Nil(t, cat)
	assert.Empty(t, repo.Categories())
}

func TestResolveFallsBackToPlatformDefault(t *testing.T) {
	repo := catalog.NewMemoryRepository()
	c := New(repo, nil, map[string]string{"Square": "Beauty"}, nil)
	ctx := context.Background()

	cat, err := c.Resolve(ctx, "square", "Consultation")
	require.NoError(t, err)
	assert.Equal(t, "Beauty", cat.Name)

	again, err := c.Resolve(ctx, "square", "Follow-up")
	require.NoError(t, err)
	assert.Equal(t, cat.ID, again.ID)

	other, err := c.Resolve(ctx, "mindbody", "Consultation")
	require.NoError(t, err)
	assert.Equal(t, FallbackCategory, other.Name)
}

func TestCustomRulesFirstMatchWins(t *testing.T) {
	c := New(nil, []Rule{
		{Keywords: []string{"hot stone"}, Category: "Stone Therapy"},
		{Keywords: []string{"massage"}, Category: "Massage"},
	}, nil, nil)
	rule, ok := c.Match("Hot Stone Massage")
	require.True(t, ok)
	assert.Equal(t, "Stone Therapy", rule.Category)
}

type failingStore struct{}

func (failingStore) GetOrCreateCategory(context.Context, string, string) (*catalog.Category, error) {
	return nil, errors.New("db down")
}

func TestClassifyPropagatesStoreErrors(t *testing.T) {
	c := New(failingStore{}, nil, nil, nil)
	_, err := c.Classify(context.Background(), "Swedish Massage")
	assert.Error(t, err)
}
