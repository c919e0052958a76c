package gen

import (
	"context"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	m, err := Generate(context.Background(), parse(t, blogSpec), WithTarget(dir), WithWorkers(2))
	require.NoError(t, err)
	assert.Equal(t, 7, m.FilesGenerated)
	assert.Positive(t, m.TotalBytes)

	files := map[string]string{}
	for _, name := range []string{
		"registry.go",
		"user/user.go", "user/where.go",
		"post/post.go", "post/where.go",
		"role/role.go", "role/where.go",
	} {
		b, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		_, err = parser.ParseFile(token.NewFileSet(), name, b, parser.AllErrors)
		require.NoError(t, err, name)
		assert.Contains(t, string(b), "// "+DefaultHeader, name)
		files[name] = string(b)
	}

	registry := files["registry.go"]
	for _, want := range []string{
		"package models",
		`"example.com/blog/models/user"`,
		`"github.com/syssam/relq/schema/edge"`,
		"func Registry(opts ...schema.Option) *schema.Registry",
		`edge.HasMany(user.EdgePosts, post.Entity).ForeignKey("author_id")`,
		"edge.BelongsToMany(user.EdgeRoles, role.Entity)",
		`edge.BelongsTo(post.EdgeAuthor, user.Entity).ForeignKey("author_id").Comment("writer of the post")`,
		`edge.BelongsToMany(role.EdgeUsers, user.Entity).Through("role_user", "", "")`,
		"func NewClient(drv dialect.Driver, opts ...relq.Option) *relq.Client",
	} {
		assert.Contains(t, registry, want)
	}

	assert.Regexp(t, `"email":\s+user\.FieldEmail,`, registry)

	entity := files["user/user.go"]
	for _, re := range []string{
		`Entity\s+= "User"`,
		`Table\s+= "users"`,
		`FieldEmail\s+= "mail"`,
		`EdgeRoles\s+= "roles"`,
		`StatusActive\s+Status = "active"`,
	} {
		assert.Regexp(t, re, entity)
	}
	for _, want := range []string{
		"// Package user: accounts of the blog.",
		"package user",
		"(ManyToMany)",
		"type Status string",
		"func (Status) Values() []Status",
		"func StatusValidator(s Status) error",
		"func Query(c *relq.Client) *relq.Query",
		"func ValidColumn(column string) bool",
	} {
		assert.Contains(t, entity, want)
	}

	where := files["user/where.go"]
	for _, re := range []string{
		`IDField\s+= sql\.NumberField\[Predicate, int64\]\(FieldID\)`,
		`NameField\s+= sql\.StringField\[Predicate\]\(FieldName\)`,
		`StatusField\s+= sql\.EnumField\[Predicate, Status\]\(FieldStatus\)`,
		`ExternalIDField\s+= sql\.ValueField\[Predicate, uuid\.UUID\]\(FieldExternalID\)`,
	} {
		assert.Regexp(t, re, where)
	}
	for _, want := range []string{
		"type Predicate func(*sql.Builder)",
		`"github.com/google/uuid"`,
		"func And(preds ...Predicate) Predicate",
		"func Where(preds ...Predicate) []sql.Predicate",
	} {
		assert.Contains(t, where, want)
	}
	assert.Regexp(t, `ViewsField\s+= sql\.NumberField\[Predicate, int32\]\(FieldViews\)`, files["post/where.go"])
	assert.Regexp(t, `PublishedAtField\s+= sql\.TimeField\[Predicate\]\(FieldPublishedAt\)`, files["post/where.go"])
	assert.Regexp(t, `MetaField\s+= sql\.JSONField\[Predicate\]\(FieldMeta\)`, files["post/where.go"])
	assert.Regexp(t, `IDField\s+= sql\.StringField\[Predicate\]\(FieldID\)`, files["role/where.go"])
	assert.Regexp(t, `FieldID\s+= "code"`, files["role/role.go"])
	assert.NotContains(t, files["post/post.go"], "Values()")
}

func TestGenerate_EnumConflict(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := `entities: [{name: Job, fields: [{name: work_mode, type: enum, values: [field, office]}]}]`
	_, err := Generate(context.Background(), parse(t, src), WithTarget(dir), WithPackage("example.com/jobs"))
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(dir, "job", "where.go"))
	require.NoError(t, err)
	assert.Regexp(t, `WorkModePred\s+= sql\.EnumField\[Predicate, WorkMode\]\(FieldWorkMode\)`, string(b))
	b, err = os.ReadFile(filepath.Join(dir, "job", "job.go"))
	require.NoError(t, err)
	assert.Regexp(t, `WorkModeField\s+WorkMode = "field"`, string(b))
}

func TestGenerate_Errors(t *testing.T) {
	t.Parallel()
	_, err := Generate(context.Background(), parse(t, `entities: [{name: User}]`), WithTarget(t.TempDir()))
	assert.ErrorIs(t, err, ErrMissingConfig, "package is required")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Generate(ctx, parse(t, blogSpec), WithTarget(t.TempDir()))
	assert.ErrorIs(t, err, context.Canceled)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = Generate(context.Background(), parse(t, blogSpec), WithTarget(file))
	assert.True(t, IsGenerationError(err))
}

func TestGraph_Files(t *testing.T) {
	t.Parallel()
	g := graph(t, blogSpec)
	assert.Equal(t, []string{
		"post/post.go", "post/where.go",
		"registry.go",
		"role/role.go", "role/where.go",
		"user/user.go", "user/where.go",
	}, g.Files())
}
