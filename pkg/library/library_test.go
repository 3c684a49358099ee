package library

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/legion-connector/pkg/models"
	"github.com/picogrid/legion-connector/pkg/state"
)

type fakeModelAPI struct {
	mu   sync.Mutex
	revs map[string]models.ModelRevision
}

func (f *fakeModelAPI) ListModelRevisions(_ context.Context, _ models.ModelRevisionFilter) ([]models.ModelRevision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ModelRevision, 0, len(f.revs))
	for _, r := range f.revs {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeModelAPI) GetModelRevision(_ context.Context, id string) (*models.ModelRevision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.revs[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

type slowFiles struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (s *slowFiles) Fetch(ctx context.Context, rev models.ModelRevision, w io.Writer) (int64, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if s.err != nil {
		return 0, s.err
	}
	n, err := io.WriteString(w, "model:"+rev.ExternalID)
	return int64(n), err
}

type fakeOpener struct {
	fail map[string]error
}

func (o *fakeOpener) OpenModel(_ context.Context, m models.ModelState) error {
	if _, err := os.Stat(m.FilePath); err != nil {
		return err
	}
	return o.fail[m.ExternalID]
}

func newModelLibrary(t *testing.T, api *fakeModelAPI, files *slowFiles, opener *fakeOpener, store *state.Store) *ModelLibrary {
	t.Helper()
	lib, err := NewModelLibrary(ModelLibraryConfig{
		SimulatorExternalID: "heatexchanger",
		Dir:                 t.TempDir(),
		API:                 api,
		Files:               files,
		Opener:              opener,
		Store:               store,
	})
	require.NoError(t, err)
	t.Cleanup(lib.Close)
	return lib
}

func revision(id string, version int) models.ModelRevision {
	return models.ModelRevision{ExternalID: id, ModelExternalID: "hx", FileID: 1, FileName: "hx.yaml", VersionNumber: version}
}

func TestModelLibraryGetDownloadsAndParses(t *testing.T) {
	api := &fakeModelAPI{revs: map[string]models.ModelRevision{"hx-1": revision("hx-1", 1)}}
	files := &slowFiles{}
	lib := newModelLibrary(t, api, files, &fakeOpener{}, nil)

	st, err := lib.GetModel(context.Background(), "hx-1")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.True(t, st.Parsed)
	assert.True(t, st.Downloaded())
	assert.Equal(t, "yaml", st.FileExtension)

	content, err := os.ReadFile(st.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "model:hx-1", string(content))

	_, err = lib.GetModel(context.Background(), "hx-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), files.calls.Load())
}

func TestModelLibraryConcurrentGetDownloadsOnce(t *testing.T) {
	api := &fakeModelAPI{revs: map[string]models.ModelRevision{"hx-1": revision("hx-1", 1)}}
	files := &slowFiles{delay: 50 * time.Millisecond}
	lib := newModelLibrary(t, api, files, &fakeOpener{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := lib.GetModel(context.Background(), "hx-1")
			assert.NoError(t, err)
			assert.NotNil(t, st)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), files.calls.Load())
}

func TestModelLibraryParseFailureIsRecorded(t *testing.T) {
	api := &fakeModelAPI{revs: map[string]models.ModelRevision{"hx-1": revision("hx-1", 1)}}
	opener := &fakeOpener{fail: map[string]error{"hx-1": errors.New("unsupported format")}}
	lib := newModelLibrary(t, api, &slowFiles{}, opener, nil)

	st, err := lib.GetModel(context.Background(), "hx-1")
	require.NoError(t, err)
	assert.False(t, st.Parsed)
	assert.Equal(t, "unsupported format", st.ParseError)
}

func TestModelLibraryDownloadFailure(t *testing.T) {
	api := &fakeModelAPI{revs: map[string]models.ModelRevision{"hx-1": revision("hx-1", 1)}}
	lib := newModelLibrary(t, api, &slowFiles{err: errors.New("403")}, &fakeOpener{}, nil)

	_, err := lib.GetModel(context.Background(), "hx-1")
	require.Error(t, err)
	assert.Equal(t, 0, lib.Len())

	matches, _ := filepath.Glob(filepath.Join(lib.cfg.Dir, "*"))
	assert.Empty(t, matches)
}

func TestModelLibraryMissingRevision(t *testing.T) {
	lib := newModelLibrary(t, &fakeModelAPI{revs: map[string]models.ModelRevision{}}, &slowFiles{}, &fakeOpener{}, nil)

	st, err := lib.GetModel(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestModelLibraryRefresh(t *testing.T) {
	api := &fakeModelAPI{revs: map[string]models.ModelRevision{
		"hx-1": revision("hx-1", 1),
		"hx-2": revision("hx-2", 2),
	}}
	files := &slowFiles{}
	lib := newModelLibrary(t, api, files, &fakeOpener{}, nil)

	require.NoError(t, lib.Refresh(context.Background()))
	assert.Equal(t, []string{"hx-1", "hx-2"}, lib.Keys())
	assert.Equal(t, int32(2), files.calls.Load())

	// unchanged revisions are not downloaded again
	require.NoError(t, lib.Refresh(context.Background()))
	assert.Equal(t, int32(2), files.calls.Load())

	// hx-1 disappears remotely: entry and file are dropped
	removed, _ := lib.Lookup("hx-1")
	api.mu.Lock()
	delete(api.revs, "hx-1")
	api.revs["hx-2"] = revision("hx-2", 3)
	api.mu.Unlock()

	require.NoError(t, lib.Refresh(context.Background()))
	assert.Equal(t, []string{"hx-2"}, lib.Keys())
	assert.NoFileExists(t, removed.FilePath)
	st, _ := lib.Lookup("hx-2")
	assert.Equal(t, 3, st.VersionNumber)
	assert.Equal(t, int32(3), files.calls.Load())
}

func TestModelLibraryPersistsState(t *testing.T) {
	store, err := state.Open(state.Config{InMemory: true})
	require.NoError(t, err)
	defer store.Close()

	api := &fakeModelAPI{revs: map[string]models.ModelRevision{"hx-1": revision("hx-1", 1)}}
	files := &slowFiles{}
	first := newModelLibrary(t, api, files, &fakeOpener{}, store)
	_, err = first.GetModel(context.Background(), "hx-1")
	require.NoError(t, err)

	lib, err := NewModelLibrary(ModelLibraryConfig{Dir: first.cfg.Dir, API: api, Files: files, Opener: &fakeOpener{}, Store: store})
	require.NoError(t, err)
	defer lib.Close()

	st, ok := lib.Lookup("hx-1")
	require.True(t, ok)
	assert.True(t, st.Parsed)

	require.NoError(t, lib.Refresh(context.Background()))
	assert.Equal(t, int32(1), files.calls.Load())
}

func TestWipeTemporaryFiles(t *testing.T) {
	lib := newModelLibrary(t, &fakeModelAPI{}, &slowFiles{}, &fakeOpener{}, nil)

	tmp := filepath.Join(lib.cfg.Dir, "scratch.tmp")
	keep := filepath.Join(lib.cfg.Dir, "hx-1.yaml")
	require.NoError(t, os.WriteFile(tmp, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(keep, []byte("x"), 0o644))

	require.NoError(t, lib.WipeTemporaryFiles())
	assert.NoFileExists(t, tmp)
	assert.FileExists(t, keep)
}

type fakeRoutineAPI struct {
	revs  map[string]models.RoutineRevision
	gets  int
	lists int
}

func (f *fakeRoutineAPI) ListRoutineRevisions(_ context.Context, filter models.RoutineRevisionFilter) ([]models.RoutineRevision, error) {
	f.lists++
	var out []models.RoutineRevision
	for _, r := range f.revs {
		if len(filter.SimulatorIntegrationExternalIDs) == 1 && r.SimulatorIntegrationExternalID == filter.SimulatorIntegrationExternalIDs[0] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRoutineAPI) GetRoutineRevision(_ context.Context, id string) (*models.RoutineRevision, error) {
	f.gets++
	r, ok := f.revs[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func TestRoutineLibrary(t *testing.T) {
	api := &fakeRoutineAPI{revs: map[string]models.RoutineRevision{
		"r1": {ExternalID: "r1", SimulatorIntegrationExternalID: "site-a"},
		"r2": {ExternalID: "r2", SimulatorIntegrationExternalID: "site-b"},
	}}
	lib, err := NewRoutineLibrary(api, "site-a", nil)
	require.NoError(t, err)

	require.NoError(t, lib.Refresh(context.Background()))
	assert.Equal(t, []string{"r1"}, lib.Keys())

	r, err := lib.GetRoutine(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", r.ExternalID)
	assert.Equal(t, 0, api.gets)

	r, err = lib.GetRoutine(context.Background(), "r2")
	require.NoError(t, err)
	assert.Equal(t, "site-b", r.SimulatorIntegrationExternalID)
	assert.Equal(t, 1, api.gets)

	r, err = lib.GetRoutine(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestNewRequiresCallbacks(t *testing.T) {
	_, err := New(Source[models.RoutineRevision]{Name: "broken"}, nil)
	assert.Error(t, err)
}
