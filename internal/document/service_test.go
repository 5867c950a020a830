package document

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/docstream/internal/access"
	"github.com/lalith-99/docstream/internal/apperr"
	"github.com/lalith-99/docstream/internal/models"
	"github.com/lalith-99/docstream/internal/repository"
	"github.com/lalith-99/docstream/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// failingDocuments fails the next n writes before they reach the store, the
// way a timed-out transaction would.
type failingDocuments struct {
	repository.DocumentRepository
	n atomic.Int32
}

func (d *failingDocuments) failNext(n int32) { d.n.Store(n) }

func (d *failingDocuments) fail() bool {
	for {
		n := d.n.Load()
		if n <= 0 {
			return false
		}
		if d.n.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

func (d *failingDocuments) Create(ctx context.Context, doc *models.Document, initial models.DocumentVersion) error {
	if d.fail() {
		return fmt.Errorf("insert document: %w", context.DeadlineExceeded)
	}
	return d.DocumentRepository.Create(ctx, doc, initial)
}

func (d *failingDocuments) Commit(ctx context.Context, v models.DocumentVersion) error {
	if d.fail() {
		return fmt.Errorf("commit document: %w", context.DeadlineExceeded)
	}
	return d.DocumentRepository.Commit(ctx, v)
}

type fixture struct {
	svc      *Service
	docs     *failingDocuments
	versions *memory.VersionStore
	ops      *memory.OperationStore
	tenant   uuid.UUID
	owner    access.Principal
	clock    *time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	f := &fixture{
		versions: memory.NewVersionStore(),
		ops:      memory.NewOperationStore(),
		tenant:   uuid.New(),
		clock:    &now,
	}
	f.owner = access.User(f.tenant, uuid.New())
	opts = append([]Option{WithClock(func() time.Time { return *f.clock })}, opts...)
	f.docs = &failingDocuments{DocumentRepository: memory.NewDocumentStore(f.versions)}
	f.svc = NewService(f.docs, f.versions, f.ops, zap.NewNop(), opts...)
	return f
}

func (f *fixture) create(t *testing.T, content string) *models.Document {
	t.Helper()
	doc, err := f.svc.Create(context.Background(), f.owner, "notes", content)
	require.NoError(t, err)
	return doc
}

func (f *fixture) grant(t *testing.T, doc *models.Document, level models.AccessLevel) access.Principal {
	t.Helper()
	p := access.User(f.tenant, uuid.New())
	_, err := f.svc.SetPermission(context.Background(), f.owner, doc.ID, p.UserID, level)
	require.NoError(t, err)
	return p
}

func base(v int64) *int64 { return &v }

func TestCreateStartsAtVersionZero(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, "A")

	assert.Equal(t, int64(0), doc.Version)
	assert.Equal(t, f.owner.UserID, doc.OwnerID)

	versions, err := f.svc.ListVersions(context.Background(), f.owner, doc.ID, 0)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, int64(0), versions[0].Sequence)
	assert.Equal(t, LabelInitial, versions[0].Label)
	assert.Equal(t, "A", versions[0].Content)
}

func TestCreateRequiresUserPrincipal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, access.Link(f.tenant, "tok"), "t", "")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.Create(ctx, access.Principal{}, "t", "")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestVersionsAreGapFree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, "v0")

	for i := 1; i <= 10; i++ {
		res, err := f.svc.ApplyEdit(ctx, f.owner, doc.ID, EditInput{Content: "v"})
		require.NoError(t, err)
		assert.Equal(t, int64(i), res.Document.Version)
		assert.Equal(t, int64(i), res.Version.Sequence)
	}

	versions, err := f.svc.ListVersions(ctx, f.owner, doc.ID, 0)
	require.NoError(t, err)
	require.Len(t, versions, 11)
	for i, v := range versions {
		assert.Equal(t, int64(10-i), v.Sequence)
	}
}

func TestFailedCommitLeavesStateConsistent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, "A")

	_, err := f.svc.ApplyEdit(ctx, f.owner, doc.ID, EditInput{Content: "B"})
	require.NoError(t, err)

	f.docs.failNext(1)
	_, err = f.svc.ApplyEdit(ctx, f.owner, doc.ID, EditInput{Content: "lost"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got, err := f.svc.Get(ctx, f.owner, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, "B", got.Content)

	versions, err := f.svc.ListVersions(ctx, f.owner, doc.ID, 0)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, int64(1), versions[0].Sequence)
	assert.Equal(t, "B", versions[0].Content)

	// Later edits carry on from where the store actually is.
	for _, content := range []string{"C", "D"} {
		_, err := f.svc.ApplyEdit(ctx, f.owner, doc.ID, EditInput{Content: content})
		require.NoError(t, err)
	}

	got, err = f.svc.Get(ctx, f.owner, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, "D", got.Content)

	versions, err = f.svc.ListVersions(ctx, f.owner, doc.ID, 0)
	require.NoError(t, err)
	require.Len(t, versions, 4)
	for i, v := range versions {
		assert.Equal(t, int64(3-i), v.Sequence)
	}
	assert.Equal(t, got.Content, versions[0].Content)

	ops, err := f.svc.ListOperations(ctx, f.owner, doc.ID, 0)
	require.NoError(t, err)
	assert.Len(t, ops, 3, "the failed edit is not in the operation log")
}

func TestFailedRevertLeavesStateConsistent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, "A")
	_, err := f.svc.ApplyEdit(ctx, f.owner, doc.ID, EditInput{Content: "B"})
	require.NoError(t, err)

	versions, err := f.svc.ListVersions(ctx, f.owner, doc.ID, 0)
	require.NoError(t, err)
	initial := versions[len(versions)-1]

	f.docs.failNext(1)
	_, err = f.svc.Revert(ctx, f.owner, doc.ID, initial.ID)
	require.Error(t, err)

	got, err := f.svc.Get(ctx, f.owner, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, "B", got.Content)

	res, err := f.svc.Revert(ctx, f.owner, doc.ID, initial.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Version.Sequence)
	assert.Equal(t, "A", res.Document.Content)
}

func TestFailedCreateLeavesNothingBehind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.docs.failNext(1)
	_, err := f.svc.Create(ctx, f.owner, "notes", "A")
	require.Error(t, err)

	docs, err := f.svc.List(ctx, f.owner)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestStaleEditStillCommitsLastWriterWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, "A")

	x, err := f.svc.ApplyEdit(ctx, f.owner, doc.ID, EditInput{Content: "B", BaseVersion: base(0)})
	require.NoError(t, err)
	assert.False(t, x.Stale)
	assert.Equal(t, int64(1), x.Document.Version)

	y, err := f.svc.ApplyEdit(ctx, f.owner, doc.ID, EditInput{Content: "C", BaseVersion: base(0)})
	require.NoError(t, err)
	assert.True(t, y.Stale)
	assert.Equal(t, int64(1), y.BaseVersion)
	assert.Equal(t, int64(2), y.Document.Version)

	got, err := f.svc.Get(ctx, f.owner, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "C", got.Content)
	assert.Equal(t, int64(2), got.Version)
}

func TestEditRecordsOperation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, "A")

	_, err := f.svc.ApplyEdit(ctx, f.owner, doc.ID, EditInput{Content: "B", Lamport: 7, Delta: "naive-full-sync"})
	require.NoError(t, err)

	ops, err := f.svc.ListOperations(ctx, f.owner, doc.ID, 0)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, int64(7), ops[0].Lamport)
	assert.Equal(t, int64(1), ops[0].Version)
	assert.Equal(t, "naive-full-sync", ops[0].Delta)
}

func TestViewerCannotEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, "A")
	viewer := f.grant(t, doc, models.AccessView)

	_, err := f.svc.ApplyEdit(ctx, viewer, doc.ID, EditInput{Content: "B"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	got, err := f.svc.Get(ctx, viewer, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Version)
	assert.Nil(t, got.ShareLinks)
}

func TestOwnerKeepsEditWhenPermissionsSayOtherwise(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, "A")

	_, err := f.svc.SetPermission(ctx, f.owner, doc.ID, f.owner.UserID, models.AccessView)
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = f.svc.ApplyEdit(ctx, f.owner, doc.ID, EditInput{Content: "B"})
	assert.NoError(t, err)
}

func TestRevertAppendsNewVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, "A")
	_, err := f.svc.ApplyEdit(ctx, f.owner, doc.ID, EditInput{Content: "B"})
	require.NoError(t, err)
	_, err = f.svc.ApplyEdit(ctx, f.owner, doc.ID, EditInput{Content: "C"})
	require.NoError(t, err)

	history, err := f.svc.ListVersions(ctx, f.owner, doc.ID, 0)
	require.NoError(t, err)
	initial := history[len(history)-1]
	require.Equal(t, int64(0), initial.Sequence)

	res, err := f.svc.Revert(ctx, f.owner, doc.ID, initial.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Document.Version)
	assert.Equal(t, "A", res.Document.Content)
	assert.Equal(t, int64(3), res.Version.Sequence)
	assert.Equal(t, "revert to #0", res.Version.Label)

	history, err = f.svc.ListVersions(ctx, f.owner, doc.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 4)
	for i, v := range history {
		assert.Equal(t, int64(3-i), v.Sequence)
	}
	assert.Equal(t, initial, history[3], "the reverted-to entry is untouched")
}

func TestRevertUnknownOrForeignVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, "A")
	other := f.create(t, "Z")

	otherHistory, err := f.svc.ListVersions(ctx, f.owner, other.ID, 0)
	require.NoError(t, err)

	_, err = f.svc.Revert(ctx, f.owner, doc.ID, otherHistory[0].ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Revert(ctx, f.owner, doc.ID, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestShareLinkGrantsLevel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, "A")

	link, err := f.svc.CreateShareLink(ctx, f.owner, doc.ID, models.AccessComment, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, link.Token)
	holder := access.Link(f.tenant, link.Token)

	got, err := f.svc.Get(ctx, holder, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Content)

	_, err = f.svc.SetPermission(ctx, holder, doc.ID, uuid.New(), models.AccessEdit)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.ApplyEdit(ctx, holder, doc.ID, EditInput{Content: "B"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestExpiredShareLinkIsDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, "A")

	expires := f.clock.Add(time.Hour)
	link, err := f.svc.CreateShareLink(ctx, f.owner, doc.ID, models.AccessEdit, &expires)
	require.NoError(t, err)
	holder := access.Link(f.tenant, link.Token)

	_, err = f.svc.Get(ctx, holder, doc.ID)
	require.NoError(t, err)

	*f.clock = f.clock.Add(2 * time.Hour)
	_, err = f.svc.Get(ctx, holder, doc.ID)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestCreateShareLinkValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, "A")

	past := f.clock.Add(-time.Minute)
	_, err := f.svc.CreateShareLink(ctx, f.owner, doc.ID, models.AccessView, &past)
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = f.svc.CreateShareLink(ctx, f.owner, doc.ID, models.AccessLevel("admin"), nil)
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	commenter := f.grant(t, doc, models.AccessComment)
	_, err = f.svc.CreateShareLink(ctx, commenter, doc.ID, models.AccessView, nil)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestRevokeShareLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, "A")

	link, err := f.svc.CreateShareLink(ctx, f.owner, doc.ID, models.AccessView, nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.RevokeShareLink(ctx, f.owner, doc.ID, link.ID))

	_, err = f.svc.Get(ctx, access.Link(f.tenant, link.Token), doc.ID)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	err = f.svc.RevokeShareLink(ctx, f.owner, doc.ID, link.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCrossTenantIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.create(t, "A")

	outsider := access.User(uuid.New(), f.owner.UserID)
	_, err := f.svc.Get(ctx, outsider, doc.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListOnlyShowsAccessibleDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := f.create(t, "A")

	stranger := access.User(f.tenant, uuid.New())
	_, err := f.svc.Create(ctx, stranger, "private", "secret")
	require.NoError(t, err)
	shared, err := f.svc.Create(ctx, stranger, "shared", "hello")
	require.NoError(t, err)
	_, err = f.svc.SetPermission(ctx, stranger, shared.ID, f.owner.UserID, models.AccessView)
	require.NoError(t, err)

	docs, err := f.svc.List(ctx, f.owner)
	require.NoError(t, err)

	ids := make([]uuid.UUID, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{mine.ID, shared.ID}, ids)
}

func TestHistoryLimitCapsListing(t *testing.T) {
	f := newFixture(t, WithHistoryLimit(3))
	ctx := context.Background()
	doc := f.create(t, "A")
	for i := 0; i < 5; i++ {
		_, err := f.svc.ApplyEdit(ctx, f.owner, doc.ID, EditInput{Content: "x"})
		require.NoError(t, err)
	}

	versions, err := f.svc.ListVersions(ctx, f.owner, doc.ID, 0)
	require.NoError(t, err)
	assert.Len(t, versions, 3)

	versions, err = f.svc.ListVersions(ctx, f.owner, doc.ID, 2)
	require.NoError(t, err)
	assert.Len(t, versions, 2)
	assert.Equal(t, int64(5), versions[0].Sequence)
}
