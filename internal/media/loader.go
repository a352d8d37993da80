package media

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"chevelle/internal/logging"
)

var audioExtensions = map[string]struct{}{
	".mp3":  {},
	".flac": {},
	".ogg":  {},
	".opus": {},
	".m4a":  {},
	".aac":  {},
	".wav":  {},
	".aiff": {},
	".wv":   {},
}

// Loader turns source paths into probed Tracks, preserving the order given.
type Loader struct {
	prober *Prober
	logger *slog.Logger
}

// NewLoader constructs a track loader.
func NewLoader(prober *Prober, logger *slog.Logger) *Loader {
	return &Loader{
		prober: prober,
		logger: logging.NewComponentLogger(logger, "loader"),
	}
}

// Load probes each path in order and returns the resulting tracks. Paths that
// cannot be probed are skipped with a warning; the play order of the surviving
// tracks is preserved. Directory arguments expand to their audio files sorted
// by name.
func (l *Loader) Load(ctx context.Context, paths []string) ([]Track, error) {
	expanded, err := expandPaths(paths)
	if err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(expanded))
	for _, path := range expanded {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := l.prober.Probe(ctx, path)
		if err != nil {
			l.logger.Warn("skipping unreadable source file",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "track_skipped"),
			)
			continue
		}
		track, err := NewTrack(path, result.Duration, result.SampleFormat)
		if err != nil {
			l.logger.Warn("skipping source file with invalid duration",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "track_skipped"),
			)
			continue
		}
		track.Index = len(tracks) + 1
		tracks = append(tracks, track)
		l.logger.Debug("track loaded",
			logging.String("title", track.Title),
			logging.Int64("frames", track.Frames),
			logging.String("sample_format", track.SampleFormat),
		)
	}
	return tracks, nil
}

func expandPaths(paths []string) ([]string, error) {
	expanded := make([]string, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			// Missing paths surface later as probe skips; keep them so the
			// warning names the offending argument.
			expanded = append(expanded, path)
			continue
		}
		if !info.IsDir() {
			expanded = append(expanded, path)
			continue
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if _, ok := audioExtensions[ext]; !ok {
				continue
			}
			names = append(names, entry.Name())
		}
		sort.Strings(names)
		for _, name := range names {
			expanded = append(expanded, filepath.Join(path, name))
		}
	}
	return expanded, nil
}
