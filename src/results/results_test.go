package results

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"context-capture/src/region"
)

type fakeRenderer struct {
	mu      sync.Mutex
	visible map[uint64]Overlay
	shown   []Overlay
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{visible: map[uint64]Overlay{}}
}

func (f *fakeRenderer) Show(o Overlay) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visible[o.ID] = o
	f.shown = append(f.shown, o)
}

func (f *fakeRenderer) Remove(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.visible, id)
}

func (f *fakeRenderer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visible)
}

type fakeCopier struct {
	text string
	err  error
}

func (c *fakeCopier) Copy(text string) error {
	c.text = text
	return c.err
}

var sel = region.Region{X: 100, Y: 200, Width: 300, Height: 80}

func TestOverlaysAreMutuallyExclusive(t *testing.T) {
	r := newFakeRenderer()
	ui := New(r, &fakeCopier{}, Options{})

	ui.ShowLoading(sel)
	ui.ShowResults("a\nb\nc", sel)
	ui.ShowError("boom", sel)

	assert.Equal(t, 1, r.count())
	cur, ok := ui.Current()
	require.True(t, ok)
	assert.Equal(t, KindError, cur.Kind)
	assert.Equal(t, "boom", cur.Text)
	ui.Hide()
}

func TestAnchorBelowRegion(t *testing.T) {
	r := newFakeRenderer()
	ui := New(r, &fakeCopier{}, Options{})
	ui.ShowLoading(sel)

	cur, _ := ui.Current()
	assert.Equal(t, 100, cur.X)
	assert.Equal(t, 290, cur.Y)
}

func TestResultsAutoDismiss(t *testing.T) {
	r := newFakeRenderer()
	ui := New(r, &fakeCopier{}, Options{ResultsTTL: 20 * time.Millisecond, ErrorTTL: time.Hour})

	ui.ShowResults("summary", sel)
	assert.Eventually(t, func() bool { return r.count() == 0 }, time.Second, 5*time.Millisecond)
	_, ok := ui.Current()
	assert.False(t, ok)
}

func TestStaleTimerDoesNotRemoveNewerOverlay(t *testing.T) {
	r := newFakeRenderer()
	ui := New(r, &fakeCopier{}, Options{ResultsTTL: 30 * time.Millisecond, ErrorTTL: time.Hour})

	ui.ShowResults("first", sel)
	ui.ShowLoading(sel)
	time.Sleep(80 * time.Millisecond)

	cur, ok := ui.Current()
	require.True(t, ok)
	assert.Equal(t, KindLoading, cur.Kind)
	assert.Equal(t, 1, r.count())
}

func TestLoadingHasNoTimer(t *testing.T) {
	r := newFakeRenderer()
	ui := New(r, &fakeCopier{}, Options{ResultsTTL: time.Millisecond, ErrorTTL: time.Millisecond})
	ui.ShowLoading(sel)
	time.Sleep(20 * time.Millisecond)
	_, ok := ui.Current()
	assert.True(t, ok)
}

func TestRetry(t *testing.T) {
	r := newFakeRenderer()
	retried := 0
	ui := New(r, &fakeCopier{}, Options{OnRetry: func() { retried++ }})

	assert.ErrorIs(t, ui.Retry(), ErrNoError)

	ui.ShowError("No text found in image", sel)
	require.NoError(t, ui.Retry())
	assert.Equal(t, 1, retried)
	assert.Equal(t, 0, r.count())
}

func TestCopy(t *testing.T) {
	c := &fakeCopier{}
	ui := New(newFakeRenderer(), c, Options{})

	assert.ErrorIs(t, ui.Copy(), ErrNoResults)

	ui.ShowResults("line1\nline2\nline3", sel)
	require.NoError(t, ui.Copy())
	assert.Equal(t, "line1\nline2\nline3", c.text)

	c.err = errors.New("no clipboard")
	assert.Error(t, ui.Copy())
	ui.Hide()
}
