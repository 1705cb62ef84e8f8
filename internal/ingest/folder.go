package ingest

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/Ashfaaq98/reconpipe/internal/event"
	"github.com/Ashfaaq98/reconpipe/internal/plugin"
)

// FolderOptions controls seed-folder ingestion.
type FolderOptions struct {
	Dir      string
	Watch    bool     // keep watching for new/changed files after the initial sweep
	Patterns []string // defaults to *.txt
	Logger   *logrus.Entry
}

// FolderIngestor reads seed target files (one target per line), classifies
// each line and injects it into the pipeline as a root event.
type FolderIngestor struct {
	notifier plugin.Notifier
	opts     FolderOptions
	log      *logrus.Entry

	mu        sync.Mutex
	processed map[string]struct{} // files already ingested this run

	ingested int
	skipped  int
}

// NewFolderIngestor constructs a folder ingestor.
func NewFolderIngestor(notifier plugin.Notifier, opts FolderOptions) *FolderIngestor {
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.New())
	}
	if len(opts.Patterns) == 0 {
		opts.Patterns = []string{"*.txt"}
	}
	return &FolderIngestor{
		notifier:  notifier,
		opts:      opts,
		log:       opts.Logger.WithField("component", "ingest"),
		processed: make(map[string]struct{}),
	}
}

// Run executes the ingestion per options (one-shot or watch).
func (fi *FolderIngestor) Run(ctx context.Context) error {
	if err := fi.scanOnce(ctx); err != nil {
		return err
	}
	if !fi.opts.Watch {
		fi.log.WithFields(logrus.Fields{
			"ingested": fi.ingested,
			"skipped":  fi.skipped,
		}).Info("completed one-shot ingest")
		return nil
	}
	return fi.watchLoop(ctx)
}

func (fi *FolderIngestor) matches(name string) bool {
	lower := strings.ToLower(name)
	for _, pat := range fi.opts.Patterns {
		if ok, _ := filepath.Match(strings.ToLower(pat), lower); ok {
			return true
		}
	}
	return false
}

func (fi *FolderIngestor) scanOnce(ctx context.Context) error {
	entries, err := os.ReadDir(fi.opts.Dir)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !fi.matches(e.Name()) {
			continue
		}
		fi.processFile(ctx, filepath.Join(fi.opts.Dir, e.Name()))
	}
	return nil
}

func (fi *FolderIngestor) watchLoop(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer w.Close()

	if err := w.Add(fi.opts.Dir); err != nil {
		return fmt.Errorf("watch add: %w", err)
	}

	fi.log.WithField("dir", fi.opts.Dir).Info("watching seed directory")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !fi.matches(filepath.Base(ev.Name)) {
				continue
			}
			// A rewritten file may carry new targets; reprocess it.
			fi.mu.Lock()
			delete(fi.processed, ev.Name)
			fi.mu.Unlock()
			fi.processFile(ctx, ev.Name)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fi.log.WithError(err).Error("watcher error")
		}
	}
}

// processFile reads one seed file and injects each recognized target.
// Duplicate targets are harmless: each module's dedup ledger drops them.
func (fi *FolderIngestor) processFile(ctx context.Context, path string) {
	fi.mu.Lock()
	if _, done := fi.processed[path]; done {
		fi.mu.Unlock()
		return
	}
	fi.processed[path] = struct{}{}
	fi.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		fi.log.WithError(err).WithField("file", path).Error("cannot open seed file")
		return
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		t, ok := Classify(line)
		if !ok {
			if strings.TrimSpace(line) != "" {
				fi.skipped++
				fi.log.WithField("target", strings.TrimSpace(line)).Debug("unrecognized seed target")
			}
			continue
		}
		ev := event.New(t, strings.TrimSpace(line), event.SeedModule)
		if err := fi.notifier.Notify(ctx, ev); err != nil {
			fi.log.WithError(err).WithField("target", ev.Data).Error("injecting seed target failed")
			continue
		}
		fi.ingested++
	}
	if err := sc.Err(); err != nil {
		fi.log.WithError(err).WithField("file", path).Error("reading seed file failed")
	}
}
