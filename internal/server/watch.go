package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"gihan9a/treestore/internal/codec"
	"gihan9a/treestore/internal/store"
)

const seedExt = ".json"

// seedAttempts bounds retries when a concurrent writer moves the winner
// between the read and the write of a seed file.
const seedAttempts = 3

// seedPath converts a seed file path to the tree path it is loaded at:
// <dir>/extra/numbers.json is loaded at /extra/numbers.
func (s *Server) seedPath(file string) (codec.Path, error) {
	relPath, err := filepath.Rel(s.config.Seed.Dir, file)
	if err != nil {
		return nil, err
	}
	relPath = strings.TrimSuffix(filepath.ToSlash(relPath), seedExt)
	p := codec.ParsePath(relPath)
	if len(p) == 0 || strings.HasPrefix(relPath, "../") {
		return nil, fmt.Errorf("%s is outside the seed directory", file)
	}
	return p, nil
}

// applySeed merges one seed file into the tree.
func (s *Server) applySeed(file string) error {
	p, err := s.seedPath(file)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	n, err := codec.Unmarshal(data)
	if err != nil {
		return errors.WithMessagef(err, "seed %s", file)
	}

	for attempt := 0; ; attempt++ {
		var parent string
		d, err := s.store.Get(codec.Path{p.DocID()}, "")
		switch {
		case err == nil:
			parent = d.Rev
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		rev, err := s.store.Put(p, n, parent)
		if errors.Is(err, store.ErrConflict) && attempt+1 < seedAttempts {
			continue
		}
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{"file": file, "path": p.String(), "rev": rev}).Info("Loaded seed file")
		return nil
	}
}

// LoadSeeds applies every *.json file below the seed directory.
func (s *Server) LoadSeeds() error {
	if s.config.Seed.Dir == "" {
		return nil
	}
	return filepath.Walk(s.config.Seed.Dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, seedExt) {
			return nil
		}
		return s.applySeed(path)
	})
}

// SetupWatchers recursively adds the seed directories to a file watcher
// and starts applying changed seed files.
func (s *Server) SetupWatchers() error {
	if s.config.Seed.Dir == "" || !s.config.Seed.Watch {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	err = filepath.Walk(s.config.Seed.Dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return err
	}
	s.watcher = watcher
	go s.watchFiles(watcher)
	return nil
}

// watchFiles applies seed files as they are written
func (s *Server) watchFiles(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, seedExt) || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			log.WithField("file", event.Name).Debug("Seed file changed")
			if err := s.applySeed(event.Name); err != nil {
				log.WithError(err).WithField("file", event.Name).Warn("Error applying seed file")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("Watcher error")
		}
	}
}
