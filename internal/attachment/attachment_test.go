package attachment

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/emrgen/notesync/internal/access"
	"github.com/emrgen/notesync/internal/blob"
	"github.com/emrgen/notesync/internal/model"
	"github.com/emrgen/notesync/internal/plan"
	"github.com/emrgen/notesync/internal/store"
	"github.com/emrgen/notesync/internal/tester"
	"github.com/emrgen/notesync/internal/token"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var safeName = regexp.MustCompile(`^[A-Za-z0-9._-]{1,120}$`)

type fixture struct {
	store   *store.GormStore
	blobs   *blob.BadgerStore
	plans   *plan.StaticProvider
	signer  *token.Signer
	manager *Manager
}

func setup(t *testing.T, tables model.Tables) *fixture {
	f := &fixture{
		store:  store.NewGormStore(tester.TestDBWithTables(t, tables), store.WithTables(tables)),
		blobs:  tester.BlobStore(t),
		plans:  plan.NewStaticProvider(plan.DefaultPlans(), plan.Free),
		signer: token.NewSigner("s3cret", token.DefaultTTL),
	}
	f.manager = NewManager(f.store, f.blobs, f.plans, f.signer)
	return f
}

func createNote(t *testing.T, s store.NoteStore, ownerID string) *model.Note {
	note := &model.Note{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Title:     "Roadmap",
		Format:    model.NoteFormatText,
		Status:    model.NoteStatusActive,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateNote(context.TODO(), note))
	return note
}

func TestCheckMime(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "", want: OctetStream, ok: true},
		{in: "image/png", want: "image/png", ok: true},
		{in: "image/heic", want: "image/heic", ok: true},
		{in: "text/plain; charset=utf-8", want: "text/plain", ok: true},
		{in: "TEXT/Markdown", want: "text/markdown", ok: true},
		{in: "application/zip", want: "application/zip", ok: false},
		{in: "image/", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := CheckMime(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.want != "" {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		mime string
		want string
	}{
		{name: "my file!!.PNG", mime: "image/png", want: "my_file.PNG"},
		{name: "../../etc/passwd", mime: "text/plain", want: "passwd.txt"},
		{name: `C:\Users\me\report.pdf`, mime: "application/pdf", want: "report.pdf"},
		{name: "   ", mime: "image/jpeg", want: "attachment.jpg"},
		{name: "???", mime: "", want: "attachment.bin"},
		{name: ".hidden", mime: "text/markdown", want: "hidden.md"},
		{name: "photo", mime: "image/avif", want: "photo.avif"},
		{name: "tabs\t\tand  spaces.txt", mime: "text/plain", want: "tabs_and_spaces.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeFilename(tt.name, tt.mime)
			assert.Equal(t, tt.want, got)
			assert.Regexp(t, safeName, got)
		})
	}

	long := SanitizeFilename(strings.Repeat("a", 300)+".pdf", "application/pdf")
	assert.Len(t, long, 120)
	assert.True(t, strings.HasSuffix(long, ".pdf"))
	assert.Regexp(t, safeName, long)
}

func TestManager_AddAttachment(t *testing.T) {
	ctx := context.TODO()
	f := setup(t, tester.Tables)
	note := createNote(t, f.store, "u1")
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	manager := NewManager(f.store, f.blobs, f.plans, f.signer, WithClock(func() time.Time { return at }))

	meta, rep, err := manager.AddAttachment(ctx, note.ID, "u1", File{
		Name: "my file!!.PNG",
		Mime: "image/png",
		Data: []byte("png-bytes"),
	})
	require.NoError(t, err)
	require.True(t, rep.OK(), rep.Err())
	assert.Regexp(t, safeName, meta.Name)
	assert.Equal(t, int64(9), meta.Size)
	assert.NotEmpty(t, meta.RecordID)
	assert.Equal(t, at, meta.CreatedAt)

	stored, err := f.store.GetNote(ctx, note.ID)
	require.NoError(t, err)
	require.Len(t, stored.Attachments, 1)
	assert.Equal(t, meta.ID, stored.Attachments[0].ID)
	assert.True(t, at.Equal(stored.Attachments[0].CreatedAt))

	records, err := f.store.ListAttachmentRecords(ctx, note.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, meta.ID, records[0].FileID)
	assert.True(t, at.Equal(records[0].CreatedAt))

	obj, err := manager.OpenAttachment(ctx, note.ID, "u1", meta.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), obj.Data)
}

func TestManager_AddAttachmentPolicy(t *testing.T) {
	ctx := context.TODO()
	f := setup(t, tester.Tables)
	note := createNote(t, f.store, "u1")
	limit := plan.DefaultPlans()[plan.Free].AttachmentSizeBytes()

	_, _, err := f.manager.AddAttachment(ctx, note.ID, "u2", File{Name: "a.txt", Mime: "text/plain", Data: []byte("x")})
	assert.ErrorIs(t, err, access.ErrNotOwner)

	_, _, err = f.manager.AddAttachment(ctx, note.ID, "u1", File{Name: "big.bin", Data: make([]byte, limit+1)})
	var policy *PolicyError
	require.ErrorAs(t, err, &policy)
	assert.Equal(t, CodeSizeLimit, policy.Code)
	assert.Equal(t, int64(10), policy.LimitMB)

	_, _, err = f.manager.AddAttachment(ctx, note.ID, "u1", File{Name: "exact.bin", Data: make([]byte, limit)})
	require.NoError(t, err)

	_, _, err = f.manager.AddAttachment(ctx, note.ID, "u1", File{Name: "a.zip", Mime: "application/zip", Data: []byte("PK")})
	require.ErrorAs(t, err, &policy)
	assert.Equal(t, CodeUnsupportedMimeType, policy.Code)
	assert.Contains(t, policy.Allowed, "application/pdf")

	_, _, err = f.manager.AddAttachment(ctx, uuid.New().String(), "u1", File{Name: "a.txt", Data: []byte("x")})
	assert.ErrorIs(t, err, ErrNoteNotFound)
}

func TestManager_AddAttachmentPlanLimit(t *testing.T) {
	f := setup(t, tester.Tables)
	note := createNote(t, f.store, "u1")
	require.NoError(t, f.plans.Assign("u1", plan.Pro))

	data := make([]byte, plan.DefaultPlans()[plan.Free].AttachmentSizeBytes()+1)
	_, _, err := f.manager.AddAttachment(context.TODO(), note.ID, "u1", File{Name: "big.bin", Data: data})
	assert.NoError(t, err)
}

func TestManager_MissingBucket(t *testing.T) {
	f := setup(t, tester.Tables)
	note := createNote(t, f.store, "u1")
	manager := NewManager(f.store, blob.NewS3StoreWithClient(nil, ""), f.plans, f.signer)

	_, _, err := manager.AddAttachment(context.TODO(), note.ID, "u1", File{Name: "a.txt", Data: []byte("x")})
	var policy *PolicyError
	require.ErrorAs(t, err, &policy)
	assert.Equal(t, CodeMissingBucketConfig, policy.Code)
	assert.ErrorIs(t, err, blob.ErrMissingBucketConfig)
}

func TestManager_ListAttachmentsGuard(t *testing.T) {
	ctx := context.TODO()
	f := setup(t, tester.Tables)
	note := createNote(t, f.store, "u1")

	meta, _, err := f.manager.AddAttachment(ctx, note.ID, "u1", File{Name: "plan.pdf", Mime: "application/pdf", Data: []byte("%PDF")})
	require.NoError(t, err)

	require.NoError(t, f.store.SaveCollaborator(ctx, &model.NoteCollaborator{NoteID: note.ID, UserID: "u2", Status: model.CollaboratorAccepted}))
	require.NoError(t, f.store.SaveCollaborator(ctx, &model.NoteCollaborator{NoteID: note.ID, UserID: "u3", Status: model.CollaboratorPending}))

	for _, caller := range []string{"u1", "u2"} {
		list, err := f.manager.ListAttachments(ctx, note.ID, caller)
		require.NoError(t, err)
		require.Len(t, list, 1, caller)
		assert.Equal(t, meta.ID, list[0].ID)
	}

	for _, caller := range []string{"u3", "stranger", ""} {
		list, err := f.manager.ListAttachments(ctx, note.ID, caller)
		require.NoError(t, err)
		assert.Empty(t, list, caller)
	}

	list, err := f.manager.ListAttachments(ctx, uuid.New().String(), "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMergingAttachmentStore_PrefersCollection(t *testing.T) {
	ctx := context.TODO()
	f := setup(t, tester.Tables)
	note := createNote(t, f.store, "u1")
	created := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, f.store.UpdateNoteAttachments(ctx, note.ID, []model.EmbeddedAttachmentMeta{
		{ID: "file-1", Name: "old.txt", Size: 1, Mime: "text/plain", CreatedAt: created},
		{ID: "file-2", Name: "legacy.txt", Size: 2, Mime: "text/plain", CreatedAt: created},
	}))
	require.NoError(t, f.store.CreateAttachmentRecord(ctx, &model.AttachmentRecord{
		ID: "rec-1", NoteID: note.ID, OwnerID: "u1", FileID: "file-1",
		Filename: "renamed.txt", Mimetype: "text/plain", SizeBytes: 1, CreatedAt: created,
	}))
	// a record without an embedded entry is not a member of the note
	require.NoError(t, f.store.CreateAttachmentRecord(ctx, &model.AttachmentRecord{
		ID: "rec-3", NoteID: note.ID, OwnerID: "u1", FileID: "file-3",
		Filename: "stray.txt", Mimetype: "text/plain", SizeBytes: 3, CreatedAt: created,
	}))

	list, err := f.manager.ListAttachments(ctx, note.ID, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "renamed.txt", list[0].Name)
	assert.Equal(t, "rec-1", list[0].RecordID)
	assert.Equal(t, "legacy.txt", list[1].Name)
	assert.Empty(t, list[1].RecordID)
}

func TestCollectionAttachmentStore_Remove(t *testing.T) {
	ctx := context.TODO()
	f := setup(t, tester.Tables)
	note := createNote(t, f.store, "u1")
	collection := NewCollectionAttachmentStore(f.store)

	meta := &Meta{ID: "file-1", Name: "a.txt", Size: 1, Mime: "text/plain", CreatedAt: time.Now().UTC()}
	require.NoError(t, collection.Add(ctx, note.ID, "u1", meta))

	removed, err := collection.Remove(ctx, note.ID, "file-2")
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = collection.Remove(ctx, note.ID, "file-1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = collection.Remove(ctx, note.ID, "file-1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestManager_RemoveAttachment(t *testing.T) {
	ctx := context.TODO()
	f := setup(t, tester.Tables)
	note := createNote(t, f.store, "u1")

	meta, _, err := f.manager.AddAttachment(ctx, note.ID, "u1", File{Name: "a.txt", Mime: "text/plain", Data: []byte("hello")})
	require.NoError(t, err)

	_, _, err = f.manager.RemoveAttachment(ctx, note.ID, "u2", meta.ID)
	assert.ErrorIs(t, err, access.ErrNotOwner)

	removed, rep, err := f.manager.RemoveAttachment(ctx, note.ID, "u1", meta.ID)
	require.NoError(t, err)
	require.True(t, rep.OK(), rep.Err())
	assert.True(t, removed)

	list, err := f.manager.ListAttachments(ctx, note.ID, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)

	records, err := f.store.ListAttachmentRecords(ctx, note.ID)
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = f.blobs.Get(ctx, "u1", meta.ID)
	assert.ErrorIs(t, err, blob.ErrNotFound)

	removed, _, err = f.manager.RemoveAttachment(ctx, note.ID, "u1", meta.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestManager_EmbeddedOnly(t *testing.T) {
	ctx := context.TODO()
	tables := model.Tables{NoteTags: model.NoteTagsTable}
	f := setup(t, tables)
	note := createNote(t, f.store, "u1")

	meta, rep, err := f.manager.AddAttachment(ctx, note.ID, "u1", File{Name: "a.md", Mime: "text/markdown", Data: []byte("# hi")})
	require.NoError(t, err)
	assert.True(t, rep.OK())
	assert.Empty(t, meta.RecordID)

	list, err := f.manager.ListAttachments(ctx, note.ID, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	removed, rep, err := f.manager.RemoveAttachment(ctx, note.ID, "u1", meta.ID)
	require.NoError(t, err)
	assert.True(t, rep.OK())
	assert.True(t, removed)
}

type failingRecords struct {
	*store.GormStore
}

func (failingRecords) CreateAttachmentRecord(context.Context, *model.AttachmentRecord) error {
	return errors.New("records unavailable")
}

func TestManager_RecordFailureIsNotFatal(t *testing.T) {
	ctx := context.TODO()
	f := setup(t, tester.Tables)
	note := createNote(t, f.store, "u1")
	manager := NewManager(failingRecords{f.store}, f.blobs, f.plans, f.signer)

	meta, rep, err := manager.AddAttachment(ctx, note.ID, "u1", File{Name: "a.txt", Data: []byte("x")})
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.False(t, rep.OK())
	assert.Equal(t, []string{"create_record"}, rep.Steps())

	list, err := manager.ListAttachments(ctx, note.ID, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

type failingEmbedded struct {
	*store.GormStore
}

func (failingEmbedded) UpdateNoteAttachments(context.Context, string, []model.EmbeddedAttachmentMeta) error {
	return errors.New("note write failed")
}

type recordingBlobs struct {
	blob.Store
	ids []string
}

func (r *recordingBlobs) Put(ctx context.Context, obj *blob.Object) (string, error) {
	id, err := r.Store.Put(ctx, obj)
	r.ids = append(r.ids, id)
	return id, err
}

func TestManager_EmbeddedFailureDeletesBlob(t *testing.T) {
	ctx := context.TODO()
	f := setup(t, tester.Tables)
	note := createNote(t, f.store, "u1")
	blobs := &recordingBlobs{Store: f.blobs}
	manager := NewManager(failingEmbedded{f.store}, blobs, f.plans, f.signer)

	_, rep, err := manager.AddAttachment(ctx, note.ID, "u1", File{Name: "a.txt", Data: []byte("x")})
	require.Error(t, err)
	assert.True(t, rep.OK(), rep.Err())

	require.Len(t, blobs.ids, 1)
	_, err = f.blobs.Get(ctx, "u1", blobs.ids[0])
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestManager_SignedURL(t *testing.T) {
	ctx := context.TODO()
	f := setup(t, tester.Tables)
	note := createNote(t, f.store, "u1")

	meta, _, err := f.manager.AddAttachment(ctx, note.ID, "u1", File{Name: "a.txt", Data: []byte("payload")})
	require.NoError(t, err)

	_, err = f.manager.SignedURL(ctx, note.ID, "stranger", meta.ID, 0)
	assert.ErrorIs(t, err, ErrAttachmentNotFound)

	_, err = f.manager.SignedURL(ctx, note.ID, "u1", "missing", 0)
	assert.ErrorIs(t, err, ErrAttachmentNotFound)

	signed, err := f.manager.SignedURL(ctx, note.ID, "u1", meta.ID, time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(signed.URL)
	require.NoError(t, err)
	grant, reason := f.signer.VerifyQuery(u.Query())
	require.Equal(t, token.ReasonNone, reason)

	obj, err := f.manager.Download(ctx, grant)
	require.NoError(t, err)
	assert.True(t, bytes.Equal([]byte("payload"), obj.Data))

	disabled := NewManager(f.store, f.blobs, f.plans, token.NewSigner("", 0))
	_, err = disabled.SignedURL(ctx, note.ID, "u1", meta.ID, 0)
	assert.ErrorIs(t, err, ErrSigningDisabled)
}
