package forum

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendGroupName(t *testing.T) {
	cases := []struct {
		name    string
		current string
		group   string
		want    string
	}{
		{"Empty", "", "experts", "experts"},
		{"Append", "experts", "billing", "experts|billing"},
		{"AlreadyPresent", "experts|billing", "experts", "experts|billing"},
		{"AlreadyLast", "experts|billing", "billing", "experts|billing"},
		{"PrefixIsNotMatch", "experts", "expert", "experts|expert"},
		{"TrailingSpaceKept", "", "Team ", "Team "},
		{"TrailingSpaceMatches", "Team ", "Team ", "Team "},
		{"TrailingSpaceDiffers", "Team ", "Team", "Team |Team"},
		{"EmptyNameIgnored", "experts", "", "experts"},
		{"SeparatorNameIgnored", "experts", "a|b", "experts"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, appendGroupName(c.current, c.group))
		})
	}
}

func TestGroupValidate(t *testing.T) {
	assert.NoError(t, (&Group{Name: "Team "}).Validate())
	for _, name := range []string{"", "   ", "a|b", "|"} {
		assert.ErrorIs(t, (&Group{Name: name}).Validate(), ErrInvalidRequest, name)
	}
}

func TestMemoryStoreCreateGroupRejectsBadNames(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateGroup(ctx, &Group{Name: "Team "}))

	for _, name := range []string{"", "a|b", "Team "} {
		assert.ErrorIs(t, store.CreateGroup(ctx, &Group{Name: name}), ErrInvalidRequest, name)
	}
	g, err := store.GroupByName(ctx, "Team ")
	require.NoError(t, err)
	require.NotNil(t, g)
	missing, err := store.GroupByName(ctx, "Team")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFields(t *testing.T) {
	t.Run("NilMapAllocatesOnSet", func(t *testing.T) {
		var f Fields
		f = f.SetBool(PostPendingExpertApproval, true)
		v, ok := f.Bool(PostPendingExpertApproval)
		assert.True(t, ok)
		assert.True(t, v)
		assert.Equal(t, "true", f[PostPendingExpertApproval])
	})

	t.Run("UnparsableBoolIsAbsent", func(t *testing.T) {
		f := Fields{TopicNeedsExpertPostApproval: "maybe"}
		_, ok := f.Bool(TopicNeedsExpertPostApproval)
		assert.False(t, ok)
	})

	t.Run("CloneIsIndependent", func(t *testing.T) {
		f := Fields{PostApprovedExpertGroupName: "experts"}
		c := f.Clone()
		c.SetString(PostApprovedExpertGroupName, "billing")
		assert.Equal(t, "experts", f[PostApprovedExpertGroupName])
		assert.Nil(t, Fields(nil).Clone())
	})
}

func TestCategoryExpertGroupIDs(t *testing.T) {
	c := &Category{Fields: Fields{CategoryExpertGroupIDs: "4|x|| 7 |4"}}
	assert.Equal(t, []int64{4, 7, 4}, c.ExpertGroupIDs())

	c.SetExpertGroupIDs(2, 3)
	assert.Equal(t, "2|3", c.Fields[CategoryExpertGroupIDs])
	assert.Nil(t, (&Category{}).ExpertGroupIDs())
}
