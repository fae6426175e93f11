package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"
)

const watchDebounce = 250 * time.Millisecond

// Watch reports changes to playable files under the given directories until ctx is
// done. Bursts of events are coalesced, and onChange receives the distinct paths of
// each burst. Only the listed directories themselves are watched.
func (s *Scanner) Watch(ctx context.Context, dirs []string, onChange func(paths []string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	added := 0
	for _, dir := range lo.Uniq(lo.Compact(dirs)) {
		if err := watcher.Add(dir); err != nil {
			s.logger.Warn().Err(err).Str("path", dir).Msg("cannot watch directory")
			continue
		}
		added++
	}
	if added == 0 {
		return fmt.Errorf("no watchable directories")
	}
	s.logger.Info().Int("dirs", added).Msg("watching library")

	var pending []string
	timer := time.NewTimer(watchDebounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !IsSupported(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			s.logger.Debug().Str("path", event.Name).Stringer("op", event.Op).Msg("library change")
			pending = append(pending, event.Name)
			timer.Reset(watchDebounce)

		case <-timer.C:
			if len(pending) > 0 {
				onChange(lo.Uniq(pending))
				pending = nil
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}
