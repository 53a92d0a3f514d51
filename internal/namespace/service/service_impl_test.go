package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	namespacedomain "github.com/smallbiznis/quotara/internal/namespace/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) namespacedomain.Service {
	svc, _ := newTestServiceDB(t)
	return svc
}

func newTestServiceDB(t *testing.T) (namespacedomain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	err = conn.AutoMigrate(
		&namespacedomain.Namespace{},
		&namespacedomain.Project{},
		&namespacedomain.User{},
		&namespacedomain.Member{},
		&namespacedomain.GroupLink{},
		&namespacedomain.NamespaceBan{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	return NewService(ServiceParam{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
	}), conn
}

func createChild(t *testing.T, svc namespacedomain.Service, name string, parent *namespacedomain.Namespace) *namespacedomain.Namespace {
	t.Helper()
	req := namespacedomain.CreateNamespaceRequest{Name: name}
	if parent != nil {
		parentID := parent.ID.String()
		req.ParentID = &parentID
	}
	ns, err := svc.CreateNamespace(context.Background(), req)
	require.NoError(t, err)
	return ns
}

func TestCreateNamespace_TraversalPath(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	root := createChild(t, svc, "Acme Corp", nil)
	assert.True(t, root.IsRoot())
	assert.Equal(t, root.ID, root.RootID)
	assert.Equal(t, "acme-corp", root.Slug)
	assert.Equal(t, fmt.Sprintf("/%s/", root.ID), root.TraversalPath)

	child := createChild(t, svc, "platform", root)
	grandchild := createChild(t, svc, "runners", child)
	assert.Equal(t, root.ID, child.RootID)
	assert.Equal(t, root.ID, grandchild.RootID)
	assert.Equal(t, fmt.Sprintf("/%s/%s/%s/", root.ID, child.ID, grandchild.ID), grandchild.TraversalPath)

	_, err := svc.CreateNamespace(ctx, namespacedomain.CreateNamespaceRequest{Name: "  "})
	assert.True(t, errors.Is(err, namespacedomain.ErrInvalidName))

	bogus := "not-a-snowflake"
	_, err = svc.CreateNamespace(ctx, namespacedomain.CreateNamespaceRequest{Name: "x", ParentID: &bogus})
	assert.True(t, errors.Is(err, namespacedomain.ErrInvalidParent))
}

func TestRootOf(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	root := createChild(t, svc, "acme", nil)
	child := createChild(t, svc, "platform", root)
	grandchild := createChild(t, svc, "runners", child)

	for _, ns := range []*namespacedomain.Namespace{root, child, grandchild} {
		resolved, err := svc.RootOf(ctx, ns.ID)
		require.NoError(t, err)
		assert.Equal(t, root.ID, resolved.ID)
	}

	_, err := svc.RootOf(ctx, snowflake.ID(999999))
	assert.True(t, errors.Is(err, namespacedomain.ErrNamespaceNotFound))
}

func TestDescendantsOf(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	root := createChild(t, svc, "acme", nil)
	child := createChild(t, svc, "platform", root)
	grandchild := createChild(t, svc, "runners", child)
	createChild(t, svc, "other-root", nil)

	all, err := svc.DescendantsOf(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Traversal-path order puts ancestors before their descendants.
	assert.Equal(t, root.ID, all[0].ID)
	assert.Equal(t, child.ID, all[1].ID)
	assert.Equal(t, grandchild.ID, all[2].ID)

	subtree, err := svc.DescendantsOf(ctx, child.ID)
	require.NoError(t, err)
	require.Len(t, subtree, 2)
	assert.Equal(t, child.ID, subtree[0].ID)
}

func TestAnySharedRunnersEnabled(t *testing.T) {
	svc, conn := newTestServiceDB(t)
	ctx := context.Background()

	root := createChild(t, svc, "acme", nil)
	child := createChild(t, svc, "platform", root)

	enabled, err := svc.AnySharedRunnersEnabled(ctx, root.ID)
	require.NoError(t, err)
	assert.False(t, enabled)

	disabled := false
	project, err := svc.CreateProject(ctx, namespacedomain.CreateProjectRequest{
		NamespaceID:          root.ID.String(),
		Name:                 "api",
		SharedRunnersEnabled: &disabled,
	})
	require.NoError(t, err)

	// The explicit false must survive the insert, not be replaced by a
	// column default.
	var persisted namespacedomain.Project
	require.NoError(t, conn.First(&persisted, project.ID).Error)
	assert.False(t, persisted.SharedRunnersEnabled)

	enabled, err = svc.AnySharedRunnersEnabled(ctx, root.ID)
	require.NoError(t, err)
	assert.False(t, enabled)

	// One enabled project anywhere in the hierarchy flips the answer.
	_, err = svc.CreateProject(ctx, namespacedomain.CreateProjectRequest{
		NamespaceID: child.ID.String(),
		Name:        "runner-home",
	})
	require.NoError(t, err)

	enabled, err = svc.AnySharedRunnersEnabled(ctx, root.ID)
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, namespacedomain.CreateUserRequest{Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Name)
	assert.Equal(t, namespacedomain.UserStateActive, user.State)

	_, err = svc.CreateUser(ctx, namespacedomain.CreateUserRequest{Name: "Other Alice", Username: "alice"})
	assert.True(t, errors.Is(err, namespacedomain.ErrInvalidUsername))
}

func TestAddMember(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	root := createChild(t, svc, "acme", nil)
	user, err := svc.CreateUser(ctx, namespacedomain.CreateUserRequest{Username: "alice"})
	require.NoError(t, err)

	member, err := svc.AddMember(ctx, namespacedomain.AddMemberRequest{
		NamespaceID: root.ID.String(),
		UserID:      user.ID.String(),
		Role:        "maintainer",
	})
	require.NoError(t, err)
	assert.Equal(t, namespacedomain.RoleMaintainer, member.Role)
	assert.Equal(t, namespacedomain.MemberStateActive, member.State)

	_, err = svc.AddMember(ctx, namespacedomain.AddMemberRequest{
		NamespaceID: root.ID.String(),
		UserID:      user.ID.String(),
		Role:        "developer",
	})
	assert.True(t, errors.Is(err, namespacedomain.ErrMemberExists))

	_, err = svc.AddMember(ctx, namespacedomain.AddMemberRequest{
		NamespaceID: root.ID.String(),
		UserID:      user.ID.String(),
		Role:        "janitor",
	})
	assert.True(t, errors.Is(err, namespacedomain.ErrInvalidRole))
}

func TestBanUser(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	root := createChild(t, svc, "acme", nil)
	child := createChild(t, svc, "platform", root)
	user, err := svc.CreateUser(ctx, namespacedomain.CreateUserRequest{Username: "mallory"})
	require.NoError(t, err)

	_, err = svc.BanUser(ctx, child.ID, user.ID)
	assert.True(t, errors.Is(err, namespacedomain.ErrNotRootNamespace))

	ban, err := svc.BanUser(ctx, root.ID, user.ID)
	require.NoError(t, err)

	// Banning twice hands back the existing ban.
	again, err := svc.BanUser(ctx, root.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, ban.ID, again.ID)
}
