package edge_test

import (
	"testing"

	"github.com/syssam/relq/schema/edge"

	"github.com/stretchr/testify/assert"
)

// TestBuilders tests the edge builders with various configurations.
func TestBuilders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		build    func() *edge.Descriptor
		validate func(t *testing.T, desc *edge.Descriptor)
	}{
		{
			name: "has_many",
			build: func() *edge.Descriptor {
				return edge.HasMany("posts", "Post").Descriptor()
			},
			validate: func(t *testing.T, desc *edge.Descriptor) {
				assert.Equal(t, "posts", desc.Name)
				assert.Equal(t, "Post", desc.Type)
				assert.Equal(t, edge.HasManyKind, desc.Kind)
				assert.Empty(t, desc.ForeignKey)
				assert.Empty(t, desc.LocalKey)
				assert.Empty(t, desc.Through)
			},
		},
		{
			name: "has_one_keys",
			build: func() *edge.Descriptor {
				return edge.HasOne("profile", "Profile").ForeignKey("owner_id").LocalKey("uid").Descriptor()
			},
			validate: func(t *testing.T, desc *edge.Descriptor) {
				assert.Equal(t, edge.HasOneKind, desc.Kind)
				assert.Equal(t, "owner_id", desc.ForeignKey)
				assert.Equal(t, "uid", desc.LocalKey)
			},
		},
		{
			name: "belongs_to",
			build: func() *edge.Descriptor {
				return edge.BelongsTo("author", "User").ForeignKey("author_id").OwnerKey("uid").Comment("post author").Descriptor()
			},
			validate: func(t *testing.T, desc *edge.Descriptor) {
				assert.Equal(t, edge.BelongsToKind, desc.Kind)
				assert.Equal(t, "author_id", desc.ForeignKey)
				assert.Equal(t, "uid", desc.OwnerKey)
				assert.Equal(t, "post author", desc.Comment)
			},
		},
		{
			name: "belongs_to_many_through",
			build: func() *edge.Descriptor {
				return edge.BelongsToMany("roles", "Role").Through("memberships", "member_id", "").Descriptor()
			},
			validate: func(t *testing.T, desc *edge.Descriptor) {
				assert.Equal(t, edge.BelongsToManyKind, desc.Kind)
				assert.Equal(t, "memberships", desc.Through)
				assert.Equal(t, "member_id", desc.PivotForeignKey)
				assert.Empty(t, desc.PivotRelatedKey)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.validate(t, tt.build())
		})
	}
}

func TestKind_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "HasOne", edge.HasOneKind.String())
	assert.Equal(t, "HasMany", edge.HasManyKind.String())
	assert.Equal(t, "BelongsTo", edge.BelongsToKind.String())
	assert.Equal(t, "BelongsToMany", edge.BelongsToManyKind.String())
	assert.Equal(t, "Unknown", edge.Kind(0).String())
}
