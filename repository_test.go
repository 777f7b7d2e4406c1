package uow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hooked struct {
	ID     int64 `uow:"key,generated"`
	Name   string
	events []string
}

func (h *hooked) Validate(ctx context.Context) error {
	h.events = append(h.events, "validate")
	if h.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func (h *hooked) BeforeCreate(ctx context.Context) error {
	h.events = append(h.events, "before_create")
	return nil
}

func (h *hooked) AfterCreate(ctx context.Context) error {
	h.events = append(h.events, "after_create")
	return nil
}

func (h *hooked) AfterFind(ctx context.Context) error {
	h.Name = "loaded:" + h.Name
	return nil
}

// hookedProvider accepts every write without storing anything.
type hookedProvider struct {
	*fakeProvider
}

func (p *hookedProvider) Insert(ctx context.Context, entity interface{}) (bool, error) {
	entity.(*hooked).ID = 1
	return true, nil
}

func (p *hookedProvider) Query(ctx context.Context, dest interface{}, statement string, args ...interface{}) error {
	*dest.(*[]hooked) = []hooked{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}
	return nil
}

func TestAddOrUpdateRouting(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider("p", &recorder{}, LevelDefault, nil)
	repo := NewRepository[customer, int64](p)

	transient := &customer{Name: "Ada"}
	ok, err := repo.AddOrUpdate(ctx, transient)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, p.inserts)
	assert.Equal(t, 0, p.updates)
	assert.False(t, IsTransient(transient), "insert assigns the generated key")

	ok, err = repo.AddOrUpdate(ctx, &customer{ID: 42, Name: "Grace"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, p.inserts)
	assert.Equal(t, 1, p.updates)
}

func TestRepositoryForwardsToProvider(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider("p", &recorder{}, LevelDefault, nil)
	repo := NewRepository[customer, int64](p)

	e := &customer{Name: "Ada"}
	_, err := repo.Add(ctx, e)
	require.NoError(t, err)

	got, err := repo.Get(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ada", got.Name)

	all, err := repo.Query(ctx, "all")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	single, err := repo.QuerySingle(ctx, "all")
	require.NoError(t, err)
	assert.Equal(t, e.ID, single.ID)

	_, err = repo.Delete(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, 1, p.deletes)

	n, err := repo.Execute(ctx, "count")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Equal(t, 1, p.Opens(), "every repository call shares one transaction")
}

func TestRepositoryRejectsNil(t *testing.T) {
	repo := NewRepository[customer, int64](newFakeProvider("p", &recorder{}, LevelDefault, nil))

	_, err := repo.Add(context.Background(), nil)
	assert.True(t, IsKind(err, ErrorKindInvalidArgument))
	_, err = repo.AddOrUpdate(context.Background(), nil)
	assert.True(t, IsKind(err, ErrorKindInvalidArgument))
}

func TestRepositoryHooks(t *testing.T) {
	ctx := context.Background()
	p := &hookedProvider{newFakeProvider("p", &recorder{}, LevelDefault, nil)}
	repo := NewRepository[hooked, int64](p)

	e := &hooked{Name: "Ada"}
	_, err := repo.Add(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, []string{"validate", "before_create", "after_create"}, e.events)

	_, err = repo.Add(ctx, &hooked{})
	assert.True(t, IsKind(err, ErrorKindInvalidArgument), "validation failures abort the write")

	rows, err := repo.Query(ctx, "all")
	require.NoError(t, err)
	assert.Equal(t, "loaded:a", rows[0].Name)
	assert.Equal(t, "loaded:b", rows[1].Name)
}
