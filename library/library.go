// Package library maintains an in-memory index of the media files under a
// base directory, with their embedded subtitle tracks and sidecar subtitle
// files.
package library

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	goerrors "github.com/skillsenselab/subgen/errors"
	"github.com/skillsenselab/subgen/logger"
	"github.com/skillsenselab/subgen/media"
)

// videoExtensions are the container formats the scanner picks up.
var videoExtensions = map[string]bool{
	".mkv":  true,
	".mp4":  true,
	".avi":  true,
	".mov":  true,
	".m4v":  true,
	".webm": true,
}

// Config holds the library settings.
type Config struct {
	// BaseDir is the root of the media tree. All paths served by the
	// library stay inside it.
	BaseDir string `yaml:"base_dir" mapstructure:"base_dir"`
}

// Validate checks that the base directory exists.
func (c *Config) Validate() error {
	if c.BaseDir == "" {
		return goerrors.MissingField("base_dir")
	}
	info, err := os.Stat(c.BaseDir)
	if err != nil {
		return goerrors.InvalidInput("base_dir", "directory does not exist").WithCause(err)
	}
	if !info.IsDir() {
		return goerrors.InvalidInput("base_dir", "not a directory")
	}
	return nil
}

// Sidecar is a subtitle file sitting next to a media file.
type Sidecar struct {
	// Path is relative to the library base directory.
	Path string `json:"path"`
	// Language inferred from the filename, empty when not tagged.
	Language string `json:"language,omitempty"`
}

// Item is one media file in the library.
type Item struct {
	// ID is a stable identifier derived from the relative path.
	ID string `json:"id"`
	// Path is relative to the library base directory.
	Path string `json:"path"`
	// Name is the file name without extension.
	Name string `json:"name"`
	// Title from the container metadata, empty when untagged or unprobed.
	Title string `json:"title,omitempty"`
	// DurationSeconds of the container, zero when unknown.
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	// EmbeddedSubtitles are the subtitle tracks inside the container.
	EmbeddedSubtitles []media.SubtitleStream `json:"embedded_subtitles"`
	// Sidecars are subtitle files next to the media file.
	Sidecars []Sidecar `json:"sidecars"`
}

// Library scans and indexes media files. Safe for concurrent use.
type Library struct {
	cfg    Config
	prober *media.Prober
	log    *logger.Logger

	mu      sync.RWMutex
	items   []Item
	byID    map[string]Item
	scanned bool
}

// New creates a library rooted at cfg.BaseDir. prober may be nil, in which
// case items carry no container metadata.
func New(cfg Config, prober *media.Prober, log *logger.Logger) (*Library, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, goerrors.InvalidInput("base_dir", "cannot resolve absolute path").WithCause(err)
	}
	cfg.BaseDir = base
	return &Library{
		cfg:    cfg,
		prober: prober,
		log:    log.WithComponent("library"),
		byID:   map[string]Item{},
	}, nil
}

// BaseDir returns the resolved library root.
func (l *Library) BaseDir() string { return l.cfg.BaseDir }

// ItemID derives the stable identifier for a relative path.
func ItemID(relPath string) string {
	sum := sha1.Sum([]byte(filepath.ToSlash(relPath)))
	return hex.EncodeToString(sum[:])
}

// List returns the indexed items, scanning on first use or when rescan is set.
func (l *Library) List(ctx context.Context, rescan bool) ([]Item, error) {
	l.mu.RLock()
	if l.scanned && !rescan {
		items := make([]Item, len(l.items))
		copy(items, l.items)
		l.mu.RUnlock()
		return items, nil
	}
	l.mu.RUnlock()
	return l.Scan(ctx)
}

// Get returns one item by id.
func (l *Library) Get(id string) (Item, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	item, ok := l.byID[id]
	if !ok {
		return Item{}, goerrors.NotFound("media item", id)
	}
	return item, nil
}

// ResolvePath turns a library-relative path into an absolute one, rejecting
// anything that escapes the base directory.
func (l *Library) ResolvePath(relPath string) (string, error) {
	abs := filepath.Join(l.cfg.BaseDir, filepath.FromSlash(relPath))
	rel, err := filepath.Rel(l.cfg.BaseDir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", goerrors.InvalidInput("path", "outside the library base directory")
	}
	return abs, nil
}

// AbsolutePath returns the absolute path of an item by id.
func (l *Library) AbsolutePath(id string) (string, error) {
	item, err := l.Get(id)
	if err != nil {
		return "", err
	}
	return l.ResolvePath(item.Path)
}

// Scan walks the base directory and rebuilds the index.
func (l *Library) Scan(ctx context.Context) ([]Item, error) {
	var videos []string
	subtitles := map[string][]string{}

	err := filepath.WalkDir(l.cfg.BaseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != l.cfg.BaseDir {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		switch {
		case videoExtensions[ext]:
			videos = append(videos, path)
		case ext == ".srt":
			subtitles[filepath.Dir(path)] = append(subtitles[filepath.Dir(path)], path)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, goerrors.Internal(err).WithDetail("operation", "library scan")
	}

	sort.Strings(videos)
	items := make([]Item, 0, len(videos))
	byID := make(map[string]Item, len(videos))
	for _, path := range videos {
		item := l.buildItem(ctx, path, subtitles[filepath.Dir(path)])
		items = append(items, item)
		byID[item.ID] = item
	}

	l.mu.Lock()
	l.items = items
	l.byID = byID
	l.scanned = true
	l.mu.Unlock()

	l.log.Info("Library scanned", logger.Fields(
		"items", len(items),
		"base_dir", l.cfg.BaseDir,
	))
	out := make([]Item, len(items))
	copy(out, items)
	return out, nil
}

// Describe probes one item on demand and returns it with fresh container
// metadata. The cached entry is updated as well.
func (l *Library) Describe(ctx context.Context, id string) (Item, error) {
	item, err := l.Get(id)
	if err != nil {
		return Item{}, err
	}
	if l.prober == nil {
		return item, nil
	}
	abs, err := l.ResolvePath(item.Path)
	if err != nil {
		return Item{}, err
	}
	probe, err := l.prober.Probe(ctx, abs)
	if err != nil {
		return Item{}, err
	}
	item.Title = probe.Title
	item.DurationSeconds = probe.DurationSeconds
	item.EmbeddedSubtitles = probe.SubtitleStreams

	l.mu.Lock()
	l.byID[item.ID] = item
	for i := range l.items {
		if l.items[i].ID == item.ID {
			l.items[i] = item
		}
	}
	l.mu.Unlock()
	return item, nil
}

func (l *Library) buildItem(ctx context.Context, path string, dirSubtitles []string) Item {
	rel, _ := filepath.Rel(l.cfg.BaseDir, path)
	rel = filepath.ToSlash(rel)
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	item := Item{
		ID:                ItemID(rel),
		Path:              rel,
		Name:              name,
		EmbeddedSubtitles: []media.SubtitleStream{},
		Sidecars:          matchSidecars(l.cfg.BaseDir, name, dirSubtitles),
	}

	if l.prober != nil {
		probe, err := l.prober.Probe(ctx, path)
		if err != nil {
			// A broken or unreadable container still shows up in the
			// listing, just without metadata.
			l.log.Warn("Probe failed", logger.Fields(
				"path", rel,
				"error", err.Error(),
			))
		} else {
			item.Title = probe.Title
			item.DurationSeconds = probe.DurationSeconds
			item.EmbeddedSubtitles = probe.SubtitleStreams
		}
	}
	return item
}

// matchSidecars pairs subtitle files in the same directory with the media
// file by name prefix: "movie.srt" and "movie.en.srt" both belong to
// "movie.mkv".
func matchSidecars(baseDir, name string, candidates []string) []Sidecar {
	sidecars := []Sidecar{}
	for _, path := range candidates {
		base := strings.TrimSuffix(filepath.Base(path), ".srt")
		var lang string
		switch {
		case base == name:
		case strings.HasPrefix(base, name+"."):
			lang = inferLanguage(strings.TrimPrefix(base, name+"."))
			if lang == "" {
				continue
			}
		default:
			continue
		}
		rel, _ := filepath.Rel(baseDir, path)
		sidecars = append(sidecars, Sidecar{Path: filepath.ToSlash(rel), Language: lang})
	}
	sort.Slice(sidecars, func(i, j int) bool { return sidecars[i].Path < sidecars[j].Path })
	return sidecars
}

// inferLanguage accepts a bare ISO tag ("en", "eng") or a tag with a region
// or qualifier suffix ("pt-BR", "en.forced" already split off by the caller).
func inferLanguage(tag string) string {
	tag = strings.ToLower(tag)
	if i := strings.IndexByte(tag, '.'); i >= 0 {
		tag = tag[:i]
	}
	main := tag
	if i := strings.IndexByte(main, '-'); i >= 0 {
		main = main[:i]
	}
	if len(main) < 2 || len(main) > 3 {
		return ""
	}
	for _, r := range main {
		if r < 'a' || r > 'z' {
			return ""
		}
	}
	return tag
}
