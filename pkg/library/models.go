package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/picogrid/legion-connector/pkg/logger"
	"github.com/picogrid/legion-connector/pkg/metrics"
	"github.com/picogrid/legion-connector/pkg/models"
	"github.com/picogrid/legion-connector/pkg/objectstore"
	"github.com/picogrid/legion-connector/pkg/state"
	"github.com/picogrid/legion-connector/pkg/taskholder"
)

const tempSuffix = ".tmp"

// ModelAPI is the part of the platform client used by the model library.
type ModelAPI interface {
	ListModelRevisions(ctx context.Context, filter models.ModelRevisionFilter) ([]models.ModelRevision, error)
	GetModelRevision(ctx context.Context, externalID string) (*models.ModelRevision, error)
}

// ModelOpener checks that the simulator can load a model file.
type ModelOpener interface {
	OpenModel(ctx context.Context, model models.ModelState) error
}

// ModelLibraryConfig holds the collaborators of a ModelLibrary.
type ModelLibraryConfig struct {
	SimulatorExternalID string
	// Dir receives downloaded model files.
	Dir     string
	API     ModelAPI
	Files   objectstore.FileSource
	Opener  ModelOpener
	Store   *state.Store
	Metrics *metrics.Metrics
	// SettleDelay lets concurrent requests for one model join a single download.
	SettleDelay time.Duration
}

// ModelLibrary downloads model revisions of one simulator and has the simulator open
// them. Download and parsing of a revision run through a task holder, so concurrent
// requests share one operation and operations never overlap.
type ModelLibrary struct {
	*Library[models.ModelState]
	cfg   ModelLibraryConfig
	tasks *taskholder.Holder[string, models.ModelState]
	log   logger.Logger

	// downloading holds temporary files being written.
	downloading sync.Map
}

// NewModelLibrary creates the model directory and the library.
func NewModelLibrary(cfg ModelLibraryConfig) (*ModelLibrary, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("model directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create model directory: %w", err)
	}

	log := logger.WithPrefix("models")
	m := &ModelLibrary{
		cfg: cfg,
		tasks: taskholder.New[string, models.ModelState](
			taskholder.WithSettleDelay(cfg.SettleDelay),
			taskholder.WithLogger(log),
		),
		log: log,
	}

	lib, err := New(Source[models.ModelState]{
		Name: "models",
		List: m.list,
		Get:  m.get,
		Key:  func(s models.ModelState) string { return s.ExternalID },
		Changed: func(cached, remote models.ModelState) bool {
			return cached.VersionNumber != remote.VersionNumber ||
				cached.UpdatedTime != remote.UpdatedTime ||
				!fileExists(cached.FilePath)
		},
		Prepare: m.prepare,
		Evict:   m.evict,
	}, cfg.Store)
	if err != nil {
		return nil, err
	}
	m.Library = lib
	return m, nil
}

// StateFromRevision maps a platform revision to a model state that is not downloaded yet.
func StateFromRevision(rev models.ModelRevision) models.ModelState {
	ext := strings.TrimPrefix(filepath.Ext(rev.FileName), ".")
	return models.ModelState{
		ExternalID:          rev.ExternalID,
		ModelExternalID:     rev.ModelExternalID,
		SimulatorExternalID: rev.SimulatorExternalID,
		FileID:              rev.FileID,
		FileExtension:       ext,
		VersionNumber:       rev.VersionNumber,
		UpdatedTime:         rev.UpdatedTime,
	}
}

func (m *ModelLibrary) list(ctx context.Context) ([]models.ModelState, error) {
	revs, err := m.cfg.API.ListModelRevisions(ctx, models.ModelRevisionFilter{
		SimulatorExternalIDs: []string{m.cfg.SimulatorExternalID},
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.ModelState, 0, len(revs))
	for _, rev := range revs {
		out = append(out, StateFromRevision(rev))
	}
	return out, nil
}

func (m *ModelLibrary) get(ctx context.Context, externalID string) (*models.ModelState, error) {
	rev, err := m.cfg.API.GetModelRevision(ctx, externalID)
	if err != nil || rev == nil {
		return nil, err
	}
	st := StateFromRevision(*rev)
	return &st, nil
}

// GetModel returns the local state of a model revision, downloading and parsing it
// when it is not cached. It returns nil when the revision does not exist.
func (m *ModelLibrary) GetModel(ctx context.Context, externalID string) (*models.ModelState, error) {
	return m.Get(ctx, externalID)
}

func (m *ModelLibrary) prepare(ctx context.Context, st models.ModelState) (models.ModelState, error) {
	return m.tasks.Execute(ctx, st.ExternalID, func(ctx context.Context) (models.ModelState, error) {
		st, err := m.download(ctx, st)
		if err != nil {
			m.cfg.Metrics.ModelTask("download_failed")
			return st, err
		}

		if err := m.cfg.Opener.OpenModel(ctx, st); err != nil {
			if ctx.Err() != nil {
				return st, ctx.Err()
			}
			m.log.Warnf("Simulator could not open %s: %v", st.ExternalID, err)
			st.Parsed = false
			st.ParseError = err.Error()
			m.cfg.Metrics.ModelTask("parse_failed")
			return st, nil
		}

		st.Parsed = true
		st.ParseError = ""
		m.cfg.Metrics.ModelTask("parsed")
		m.log.Infof("Model %s version %d ready", st.ExternalID, st.VersionNumber)
		return st, nil
	})
}

// modelPath is where the file of st is stored.
func (m *ModelLibrary) modelPath(st models.ModelState) string {
	name := st.ExternalID
	if st.FileExtension != "" {
		name += "." + st.FileExtension
	}
	return filepath.Join(m.cfg.Dir, name)
}

func (m *ModelLibrary) download(ctx context.Context, st models.ModelState) (models.ModelState, error) {
	path := m.modelPath(st)
	tmp := path + tempSuffix
	m.downloading.Store(tmp, struct{}{})
	defer m.downloading.Delete(tmp)

	f, err := os.Create(tmp)
	if err != nil {
		return st, fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	rev := models.ModelRevision{
		ExternalID:      st.ExternalID,
		ModelExternalID: st.ModelExternalID,
		FileID:          st.FileID,
		FileName:        filepath.Base(path),
	}
	n, err := m.cfg.Files.Fetch(ctx, rev, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return st, fmt.Errorf("failed to download model %s: %w", st.ExternalID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return st, fmt.Errorf("failed to store model %s: %w", st.ExternalID, err)
	}

	m.log.Debugf("Downloaded %s (%d bytes)", path, n)
	st.FilePath = path
	st.DownloadedAt = time.Now().UTC()
	return st, nil
}

func (m *ModelLibrary) evict(st models.ModelState) {
	if st.FilePath == "" {
		return
	}
	if err := os.Remove(st.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.log.Warnf("Failed to remove %s: %v", st.FilePath, err)
	}
}

// WipeTemporaryFiles removes partial downloads and simulator scratch files left in the
// model directory.
func (m *ModelLibrary) WipeTemporaryFiles() error {
	matches, err := filepath.Glob(filepath.Join(m.cfg.Dir, "*"+tempSuffix))
	if err != nil {
		return err
	}
	var errs []error
	for _, path := range matches {
		if _, busy := m.downloading.Load(path); busy {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close cancels running model tasks.
func (m *ModelLibrary) Close() {
	m.tasks.Close()
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
