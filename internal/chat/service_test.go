package chat

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dgallion1/cvchat/internal/intent"
	"github.com/dgallion1/cvchat/internal/section"
	"github.com/dgallion1/cvchat/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const baseCV = `JANE DOE
jane@example.com

OBJECTIVE
Build reliable systems

SKILLS
Python
JavaScript

EXPERIENCE
Engineer at Acme
`

func setup(t *testing.T, classifier intent.Classifier) (*Service, store.Store, string) {
	t.Helper()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "cv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	doc := &store.Document{UserID: "u1", Filename: "cv.txt", Title: "cv", Text: baseCV}
	require.NoError(t, st.Create(context.Background(), doc))
	return NewService(st, store.NewLocks(), classifier, Options{}, nil), st, doc.ID
}

func TestHandleMessage_CreateAppends(t *testing.T) {
	svc, st, id := setup(t, nil)
	ctx := context.Background()

	reply, err := svc.HandleMessage(ctx, id, "I learned Docker and Kubernetes")
	require.NoError(t, err)
	assert.Equal(t, section.Skills, reply.Intent.Category)
	assert.Equal(t, intent.Create, reply.Intent.Operation)
	assert.Equal(t, "Docker and Kubernetes", reply.Intent.ExtractedInfo)
	assert.Equal(t, section.ActionAppended, reply.Action)
	assert.True(t, reply.Changed)
	assert.Equal(t, 2, reply.Revision)
	assert.Contains(t, reply.Diff, "+Docker and Kubernetes\n")

	doc, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "SKILLS\nPython\nJavaScript\nDocker and Kubernetes\n\nEXPERIENCE")
}

func TestHandleMessage_Read(t *testing.T) {
	svc, _, id := setup(t, nil)

	reply, err := svc.HandleMessage(context.Background(), id, "show my experience")
	require.NoError(t, err)
	assert.Equal(t, intent.Read, reply.Intent.Operation)
	assert.Equal(t, section.Experience, reply.Intent.Category)
	assert.Contains(t, reply.Content, "Engineer at Acme")
	assert.False(t, reply.Changed)
	assert.Equal(t, 1, reply.Revision)

	reply, err = svc.HandleMessage(context.Background(), id, "show my references")
	require.NoError(t, err)
	assert.Empty(t, reply.Content)
	assert.Contains(t, reply.Message, "no references section")
}

func TestHandleMessage_UpdateReplacesBody(t *testing.T) {
	svc, st, id := setup(t, nil)
	ctx := context.Background()

	reply, err := svc.HandleMessage(ctx, id, "Update my objective to Lead a platform team")
	require.NoError(t, err)
	assert.Equal(t, section.ActionReplaced, reply.Action)

	doc, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "OBJECTIVE\nLead a platform team\n\nSKILLS")
	assert.NotContains(t, doc.Text, "Build reliable systems")
}

func TestHandleMessage_UpdateChangesOneItem(t *testing.T) {
	svc, st, id := setup(t, nil)
	ctx := context.Background()

	reply, err := svc.HandleMessage(ctx, id, "Change Python to Go in my skills")
	require.NoError(t, err)
	assert.Equal(t, section.Skills, reply.Intent.Category)
	assert.Equal(t, intent.Update, reply.Intent.Operation)
	assert.Equal(t, section.ActionChanged, reply.Action)
	assert.Contains(t, reply.Diff, "-Python\n+Go\n")

	doc, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "SKILLS\nGo\nJavaScript\n\nEXPERIENCE")

	// An item that is not in the section falls back to replacing the body.
	reply, err = svc.HandleMessage(ctx, id, "Replace Rust with Zig in my skills")
	require.NoError(t, err)
	assert.Equal(t, section.ActionReplaced, reply.Action)
}

func TestHandleMessage_DeleteRemovesLine(t *testing.T) {
	svc, st, id := setup(t, nil)
	ctx := context.Background()

	reply, err := svc.HandleMessage(ctx, id, "remove JavaScript skill")
	require.NoError(t, err)
	assert.Equal(t, intent.Delete, reply.Intent.Operation)
	assert.Equal(t, section.ActionRemoved, reply.Action)

	doc, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.NotContains(t, doc.Text, "JavaScript")
	assert.Contains(t, doc.Text, "SKILLS\nPython\n")

	// Deleting again finds nothing and keeps the revision.
	reply, err = svc.HandleMessage(ctx, id, "remove JavaScript skill")
	require.NoError(t, err)
	assert.Equal(t, section.ActionSkipped, reply.Action)
	assert.False(t, reply.Changed)
	assert.Equal(t, 2, reply.Revision)
}

func TestHandleMessage_CreatesMissingSection(t *testing.T) {
	svc, st, id := setup(t, nil)
	ctx := context.Background()

	reply, err := svc.HandleMessage(ctx, id, "Chinese language")
	require.NoError(t, err)
	assert.Equal(t, section.Languages, reply.Intent.Category)
	assert.Equal(t, section.ActionCreated, reply.Action)

	doc, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, doc.Text, section.HeaderFor(section.Languages))
	m, err := section.Locate(doc.Text, section.Languages)
	require.NoError(t, err)
	assert.True(t, m.Found)
	assert.Contains(t, m.Content, "Chinese language")
}

func TestHandleMessage_NoChange(t *testing.T) {
	svc, _, id := setup(t, nil)
	ctx := context.Background()

	reply, err := svc.HandleMessage(ctx, id, "my email is jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, section.Contact, reply.Intent.Category)
	assert.Equal(t, section.ActionSkipped, reply.Action)
	assert.False(t, reply.Changed)

	reply, err = svc.HandleMessage(ctx, id, "asdf qwer")
	require.NoError(t, err)
	assert.True(t, reply.Intent.Unclassified())
	assert.Equal(t, intent.HelpText(), reply.Message)

	reply, err = svc.HandleMessage(ctx, id, "Delete my references")
	require.NoError(t, err)
	assert.Empty(t, reply.Action)
	assert.Contains(t, reply.Message, "references")
}

func TestHandleMessage_Errors(t *testing.T) {
	svc, _, id := setup(t, nil)
	ctx := context.Background()

	_, err := svc.HandleMessage(ctx, id, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = svc.HandleMessage(ctx, "missing", "I learned Go")
	assert.ErrorIs(t, err, store.ErrNotFound)

	boom := errors.New("boom")
	svc, _, id = setup(t, classifierFunc(func(context.Context, string, string) (intent.Result, error) {
		return intent.Result{}, boom
	}))
	_, err = svc.HandleMessage(ctx, id, "I learned Go")
	assert.ErrorIs(t, err, boom)
}

type classifierFunc func(ctx context.Context, message, preview string) (intent.Result, error)

func (f classifierFunc) Classify(ctx context.Context, message, preview string) (intent.Result, error) {
	return f(ctx, message, preview)
}

func TestHandleMessage_UsesClassifierAndRefines(t *testing.T) {
	var gotPreview string
	svc, st, id := setup(t, classifierFunc(func(_ context.Context, _, preview string) (intent.Result, error) {
		gotPreview = preview
		return intent.Result{Category: section.Experience, Operation: intent.Create, Source: intent.SourceLLM}, nil
	}))
	ctx := context.Background()

	reply, err := svc.HandleMessage(ctx, id, "I learned Go at Initech")
	require.NoError(t, err)
	assert.Equal(t, baseCV, gotPreview)
	assert.Equal(t, intent.SourceLLM, reply.Intent.Source)
	// The empty fact is filled in by the extractor.
	assert.Equal(t, "Go at Initech", reply.Intent.ExtractedInfo)

	doc, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "Engineer at Acme\nGo at Initech\n")
}

func TestHandleMessage_ConcurrentEditsSerialize(t *testing.T) {
	svc, st, id := setup(t, nil)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.HandleMessage(ctx, id, fmt.Sprintf("I learned Skill%d", i))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	doc, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, n+1, doc.Revision)
	for i := range n {
		assert.Contains(t, doc.Text, fmt.Sprintf("Skill%d\n", i))
	}
	assert.Equal(t, 1, strings.Count(doc.Text, "SKILLS"))
}

func TestEditSection(t *testing.T) {
	svc, _, id := setup(t, nil)
	ctx := context.Background()

	res, err := svc.EditSection(ctx, id, section.Skills, "Rust", section.Prepend)
	require.NoError(t, err)
	assert.Equal(t, section.ActionPrepended, res.Action)
	assert.True(t, res.Changed)
	assert.Equal(t, 2, res.Revision)
	assert.Equal(t, 1, res.Summary.Added)
	require.NotNil(t, res.Document)
	assert.Contains(t, res.Document.Text, "SKILLS\nRust\nPython\n")

	_, err = svc.EditSection(ctx, id, section.Skills, "Rust", section.Mode("sideways"))
	assert.ErrorIs(t, err, section.ErrUnknownMode)

	_, err = svc.EditSection(ctx, id, section.Category("astrology"), "Chess", section.Append)
	assert.ErrorIs(t, err, section.ErrUnknownCategory)

	res, err = svc.EditSection(ctx, id, section.Achievements, "", section.Append)
	require.NoError(t, err)
	assert.Equal(t, section.ActionSkipped, res.Action)
	assert.False(t, res.Changed)
}

func TestRevisionDiff(t *testing.T) {
	svc, _, id := setup(t, nil)
	ctx := context.Background()

	_, err := svc.HandleMessage(ctx, id, "I learned Go")
	require.NoError(t, err)

	d, err := svc.RevisionDiff(ctx, id, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Summary.Added)
	assert.Equal(t, 0, d.Summary.Removed)
	assert.Contains(t, d.Note, "skills")
	assert.Contains(t, d.Unified, "+Go\n")

	first, err := svc.RevisionDiff(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Summary.Removed)
	assert.Positive(t, first.Summary.Added)

	_, err = svc.RevisionDiff(ctx, id, 9)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
