package relq_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relq"
	"github.com/syssam/relq/dialect/sql"
)

func user(id any, name string) *relq.Record {
	return relq.NewRecord("User", "users", "id", sql.Row{"id": id, "name": name})
}

func TestRecord_Relations(t *testing.T) {
	t.Parallel()
	u := user(int64(1), "alice")
	assert.False(t, u.Loaded("posts"))
	_, err := u.Relation("posts")
	assert.True(t, relq.IsNotLoaded(err))

	post := relq.NewRecord("Post", "posts", "id", sql.Row{"id": int64(7), "title": "hello"})
	u.SetRelation("posts", relq.Of(post))
	u.SetRelation("profile", (*relq.Record)(nil))
	u.SetRelation("roles", (*relq.Collection)(nil))
	assert.Equal(t, []string{"posts", "profile", "roles"}, u.Relations())

	profile, err := u.One("profile")
	require.NoError(t, err)
	assert.Nil(t, profile)
	roles, err := u.Many("roles")
	require.NoError(t, err)
	assert.Zero(t, roles.Len())

	assert.Equal(t, map[string]any{
		"id":      int64(1),
		"name":    "alice",
		"profile": nil,
		"roles":   []map[string]any{},
		"posts":   []map[string]any{{"id": int64(7), "title": "hello"}},
	}, u.Map())
	assert.NotContains(t, u.Values, "posts", "Map does not modify the record")
}

func TestCollection(t *testing.T) {
	t.Parallel()
	c := relq.Of(user(int64(1), "alice"), user("2", "bob"), user(uint8(3), "carol"))
	assert.Equal(t, "User", c.Entity)
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, "alice", c.First().Get("name"))
	assert.Equal(t, "bob", c.Find(2).Get("name"))
	assert.Equal(t, "carol", c.Find("3").Get("name"))
	assert.Nil(t, c.Find(4))
	assert.Equal(t, []any{"alice", "carol"}, c.Filter(func(r *relq.Record) bool { return r.Get("name") != "bob" }).Pluck("name"))

	var empty *relq.Collection
	assert.Zero(t, empty.Len())
	assert.Nil(t, empty.First())
	assert.Empty(t, relq.Of().IDs())
}

func TestCollect(t *testing.T) {
	t.Parallel()
	admin := func() *relq.Record {
		return relq.NewRecord("Role", "roles", "id", sql.Row{"id": int64(1), "name": "admin"})
	}
	editor := relq.NewRecord("Role", "roles", "id", sql.Row{"id": 2, "name": "editor"})
	a, b, c := user(1, "alice"), user(2, "bob"), user(3, "carol")
	a.SetRelation("roles", relq.Of(admin(), editor))
	b.SetRelation("roles", relq.Of(admin()))
	c.SetRelation("roles", relq.Of())

	roles := relq.Collect(relq.Of(a, b, c), "roles")
	require.Len(t, roles, 2)
	assert.Equal(t, "admin", roles[0].Get("name"))
	assert.Same(t, editor, roles[1])
	assert.Empty(t, relq.Collect(relq.Of(a, b), "posts"))
}
