// Package inbox watches a drop folder for CSV batches and imports them.
//
// A batch is named <collection id>-<kind>.csv, for example
// ddr-test-1-entities.csv or ddr-test-1-files.csv. File batches find their
// source binaries next to the CSV. Once a file has been quiet for the
// settle delay it is imported and moved to Uploaded/ or Failed/ with a
// JSON report beside it.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/JonMunkholm/ddrcsv/internal/core"
	"github.com/JonMunkholm/ddrcsv/internal/dvcs"
	"github.com/JonMunkholm/ddrcsv/internal/logging"
	"github.com/JonMunkholm/ddrcsv/internal/models"
)

const (
	UploadedDir = "Uploaded"
	FailedDir   = "Failed"
)

// Runner imports one batch. *core.Service satisfies it.
type Runner interface {
	CollectionPath(collectionID string) (string, error)
	Run(ctx context.Context, req core.ImportRequest) (*core.Report, error)
}

// Config configures a Watcher.
type Config struct {
	Dir    string
	Settle time.Duration
	// Retry is the back-off before a batch turned away as busy is tried again.
	Retry  time.Duration
	Actor  dvcs.Actor
}

// Watcher imports batches dropped into Config.Dir, one at a time.
type Watcher struct {
	cfg    Config
	runner Runner

	mu     sync.Mutex
	timers map[string]*time.Timer
	ready  chan string
	quit   chan struct{}
}

// New returns a Watcher. Settle defaults to two seconds and Retry to thirty.
func New(cfg Config, runner Runner) *Watcher {
	if cfg.Settle <= 0 {
		cfg.Settle = 2 * time.Second
	}
	if cfg.Retry <= 0 {
		cfg.Retry = 30 * time.Second
	}
	return &Watcher{
		cfg:    cfg,
		runner: runner,
		timers: make(map[string]*time.Timer),
		ready:  make(chan string, 64),
		quit:   make(chan struct{}),
	}
}

// ParseName splits a batch file name into collection ID and kind.
func ParseName(name string) (string, models.Kind, bool) {
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return "", "", false
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	i := strings.LastIndexByte(stem, '-')
	if i <= 0 {
		return "", "", false
	}
	kind, err := models.ParseKind(stem[i+1:])
	if err != nil {
		return "", "", false
	}
	cid, err := models.ParseCollectionID(stem[:i])
	if err != nil {
		return "", "", false
	}
	return cid.String(), kind, true
}

// Run watches until ctx is done. Batches already in the folder are queued
// first.
func (w *Watcher) Run(ctx context.Context) error {
	for _, d := range []string{w.cfg.Dir, filepath.Join(w.cfg.Dir, UploadedDir), filepath.Join(w.cfg.Dir, FailedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create inbox %s: %w", d, err)
		}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start inbox watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.Dir, err)
	}

	log := logging.WithFields(ctx, "inbox", w.cfg.Dir)
	log.Info("inbox watching", "settle", w.cfg.Settle)

	if err := w.queueExisting(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.work(ctx)
	}()
	defer func() {
		w.stopTimers()
		close(w.quit)
		<-done
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if _, _, ok := ParseName(filepath.Base(ev.Name)); ok {
				w.touch(ev.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("inbox watcher error", "error", err)
		}
	}
}

func (w *Watcher) queueExisting() error {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	var names []string
	for _, e := range entries {
		if _, _, ok := ParseName(e.Name()); ok && e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		w.touch(filepath.Join(w.cfg.Dir, n))
	}
	return nil
}

// touch (re)starts the settle timer of path.
func (w *Watcher) touch(path string) {
	w.schedule(path, w.cfg.Settle)
}

func (w *Watcher) schedule(path string, delay time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Reset(delay)
		return
	}
	w.timers[path] = time.AfterFunc(delay, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		select {
		case w.ready <- path:
		case <-w.quit:
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p, t := range w.timers {
		t.Stop()
		delete(w.timers, p)
	}
}

func (w *Watcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-w.ready:
			err := w.Process(ctx, path)
			switch {
			case err == nil:
			case busy(err):
				logging.FromContext(ctx).Info("inbox batch deferred", "csv", path, "retry", w.cfg.Retry, "reason", err)
				w.schedule(path, w.cfg.Retry)
			default:
				logging.FromContext(ctx).Warn("inbox batch failed", "csv", path, "error", err)
			}
		}
	}
}

// busy reports whether a batch was turned away without being read.
func busy(err error) bool {
	return errors.Is(err, core.ErrCollectionLocked) || errors.Is(err, core.ErrTooManyImports)
}

// Process imports one batch file and files it under Uploaded/ or Failed/.
// A batch turned away because its collection or the importer is busy stays
// in the inbox. The returned error is the import error, if any.
func (w *Watcher) Process(ctx context.Context, path string) error {
	name := filepath.Base(path)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	cid, kind, ok := ParseName(name)
	if !ok {
		return fmt.Errorf("not a batch file: %s", name)
	}

	var rep *core.Report
	coll, err := w.runner.CollectionPath(cid)
	if err == nil {
		rep, err = w.runner.Run(ctx, core.ImportRequest{
			Kind:           kind,
			CSVPath:        path,
			CollectionPath: coll,
			Actor:          w.cfg.Actor,
		})
	}
	if busy(err) {
		return err
	}
	if err == nil && rep != nil && rep.Failed > 0 {
		err = fmt.Errorf("%d of %d rows failed", rep.Failed, rep.Total)
	}

	dest := UploadedDir
	if err != nil {
		dest = FailedDir
	}
	if merr := w.file(path, dest, rep, err); merr != nil {
		logging.FromContext(ctx).Error("inbox move failed", "csv", path, "error", merr)
	}

	logging.WithFields(ctx, "csv", name, "collection", cid, "kind", kind).Info("inbox batch processed", "result", dest)
	return err
}

// file moves path into dest with a timestamp prefix and writes the report
// beside it.
func (w *Watcher) file(path, dest string, rep *core.Report, runErr error) error {
	stamp := time.Now().Format("20060102-150405")
	target := filepath.Join(w.cfg.Dir, dest, stamp+"-"+filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		return err
	}

	out := struct {
		Report *core.Report      `json:"report,omitempty"`
		Error  *core.UserMessage `json:"error,omitempty"`
		Detail string            `json:"detail,omitempty"`
	}{Report: rep}
	if runErr != nil {
		msg := core.MapError(runErr)
		out.Error, out.Detail = &msg, runErr.Error()
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(strings.TrimSuffix(target, filepath.Ext(target))+".report.json", data, 0o644)
}
