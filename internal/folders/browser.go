// Package folders presents the library's flat folder paths as a navigable
// tree. Nothing here touches the filesystem: everything derives from the
// folder path captured on each song during a scan.
package folders

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/fermata-audio/fermata/internal/store"
)

// SongSource reads the flat song list. Satisfied by store.DAO.
type SongSource interface {
	AllSongs() ([]store.Song, error)
}

// QueuePlayer receives the queue-replace handoff. Satisfied by
// player.Controller.
type QueuePlayer interface {
	SetQueueFromSongs(songs []store.Song, start int) error
}

// Crumb is one breadcrumb trail entry.
type Crumb struct {
	Label string `json:"label"`
	Path  string `json:"path"`
}

// Entry is one subfolder in a listing.
type Entry struct {
	Name           string `json:"name"`
	Path           string `json:"path"`
	DirectSongs    int    `json:"directSongs"`
	TotalSongs     int    `json:"totalSongs"`
	SubFolderCount int    `json:"subFolderCount"`
}

// View is a rendered listing of the current position in the tree.
type View struct {
	Path    string       `json:"path"`
	Crumbs  []Crumb      `json:"breadcrumbs"`
	Folders []Entry      `json:"folders"`
	Songs   []store.Song `json:"songs"`
}

// rootLabel names the synthetic breadcrumb entry for the inferred root.
const rootLabel = "Music"

// Browser holds the navigation state: the current path and the breadcrumb
// trail. An empty current path means the virtual root, which resolves to
// the longest common prefix of all folder paths.
type Browser struct {
	songs  SongSource
	player QueuePlayer

	mu      sync.Mutex
	current string
	crumbs  []Crumb
}

// NewBrowser creates a browser over the given song source and player.
func NewBrowser(songs SongSource, player QueuePlayer) *Browser {
	return &Browser{
		songs:  songs,
		player: player,
		crumbs: []Crumb{{Label: rootLabel, Path: ""}},
	}
}

// ComputeRoot infers a starting folder by truncating a candidate at its
// last separator until every folder path starts with it.
func ComputeRoot(songs []store.Song) string {
	candidate := ""
	for _, s := range songs {
		if s.FolderPath != "" {
			candidate = s.FolderPath
			break
		}
	}
	if candidate == "" {
		return ""
	}

	for candidate != "" {
		all := true
		for _, s := range songs {
			if s.FolderPath == "" {
				continue
			}
			if !strings.HasPrefix(s.FolderPath, candidate) {
				all = false
				break
			}
		}
		if all {
			return candidate
		}
		idx := strings.LastIndex(candidate, "/")
		if idx < 0 {
			return ""
		}
		candidate = candidate[:idx]
	}
	return ""
}

// List renders the current position: immediate subfolders with their
// counts, plus the songs sitting directly in the current folder.
func (b *Browser) List() (*View, error) {
	songs, err := b.songs.AllSongs()
	if err != nil {
		return nil, fmt.Errorf("failed to read songs: %w", err)
	}

	b.mu.Lock()
	current := b.current
	crumbs := append([]Crumb(nil), b.crumbs...)
	b.mu.Unlock()

	root := current
	if root == "" {
		root = ComputeRoot(songs)
	}

	folders, direct := subFolders(songs, root)
	return &View{
		Path:    root,
		Crumbs:  crumbs,
		Folders: folders,
		Songs:   direct,
	}, nil
}

// subFolders accumulates, in one pass over all songs, each immediate child
// of root with its direct count, total count and immediate sub-segment set.
func subFolders(songs []store.Song, root string) ([]Entry, []store.Song) {
	type acc struct {
		direct int
		total  int
		subs   map[string]struct{}
	}
	children := make(map[string]*acc)
	var direct []store.Song

	for _, s := range songs {
		suffix, ok := relativeTo(s.FolderPath, root)
		if !ok {
			continue
		}
		if suffix == "" {
			direct = append(direct, s)
			continue
		}

		seg := suffix
		rest := ""
		if idx := strings.Index(suffix, "/"); idx >= 0 {
			seg = suffix[:idx]
			rest = suffix[idx+1:]
		}

		a, ok := children[seg]
		if !ok {
			a = &acc{subs: make(map[string]struct{})}
			children[seg] = a
		}
		a.total++
		if rest == "" {
			a.direct++
		} else {
			sub := rest
			if idx := strings.Index(rest, "/"); idx >= 0 {
				sub = rest[:idx]
			}
			a.subs[sub] = struct{}{}
		}
	}

	entries := make([]Entry, 0, len(children))
	for name, a := range children {
		childPath := name
		if root != "" {
			childPath = root + "/" + name
		}
		entries = append(entries, Entry{
			Name:           name,
			Path:           childPath,
			DirectSongs:    a.direct,
			TotalSongs:     a.total,
			SubFolderCount: len(a.subs),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})

	return entries, direct
}

// relativeTo returns folder's path suffix below root, with ok=false when
// folder is outside the root subtree. An empty suffix means folder is the
// root itself.
func relativeTo(folder, root string) (string, bool) {
	if root == "" {
		return strings.TrimPrefix(folder, "/"), true
	}
	if folder == root {
		return "", true
	}
	if strings.HasPrefix(folder, root+"/") {
		return folder[len(root)+1:], true
	}
	return "", false
}

// NavigateTo enters a folder. If the path already appears in the trail the
// trail truncates there instead of growing a duplicate entry.
func (b *Browser) NavigateTo(path, label string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, c := range b.crumbs {
		if c.Path == path {
			b.crumbs = b.crumbs[:i+1]
			b.current = path
			return
		}
	}
	b.crumbs = append(b.crumbs, Crumb{Label: label, Path: path})
	b.current = path
}

// PopBack moves to the second-to-last breadcrumb. At the root it is a
// no-op.
func (b *Browser) PopBack() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.crumbs) <= 1 {
		return
	}
	b.crumbs = b.crumbs[:len(b.crumbs)-1]
	b.current = b.crumbs[len(b.crumbs)-1].Path
}

// NavigateToBreadcrumb truncates the trail to index i.
func (b *Browser) NavigateToBreadcrumb(i int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i < 0 || i >= len(b.crumbs) {
		return
	}
	b.crumbs = b.crumbs[:i+1]
	b.current = b.crumbs[i].Path
}

// Breadcrumbs returns a copy of the current trail.
func (b *Browser) Breadcrumbs() []Crumb {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Crumb(nil), b.crumbs...)
}

// PlayAll queues every song under the current subtree and starts playback.
func (b *Browser) PlayAll() error {
	songs, err := b.subtreeSongs()
	if err != nil {
		return err
	}
	if len(songs) == 0 {
		return nil
	}
	return b.player.SetQueueFromSongs(songs, 0)
}

// ShuffleAll queues the current subtree in random order.
func (b *Browser) ShuffleAll() error {
	songs, err := b.subtreeSongs()
	if err != nil {
		return err
	}
	if len(songs) == 0 {
		return nil
	}
	rand.Shuffle(len(songs), func(i, j int) {
		songs[i], songs[j] = songs[j], songs[i]
	})
	return b.player.SetQueueFromSongs(songs, 0)
}

// PlaySong queues the current subtree and starts at the given song.
func (b *Browser) PlaySong(songID int64) error {
	songs, err := b.subtreeSongs()
	if err != nil {
		return err
	}
	for i, s := range songs {
		if s.ID == songID {
			return b.player.SetQueueFromSongs(songs, i)
		}
	}
	return fmt.Errorf("song %d not in current folder", songID)
}

// subtreeSongs returns the songs under the current subtree, any depth.
func (b *Browser) subtreeSongs() ([]store.Song, error) {
	all, err := b.songs.AllSongs()
	if err != nil {
		return nil, fmt.Errorf("failed to read songs: %w", err)
	}

	b.mu.Lock()
	current := b.current
	b.mu.Unlock()

	if current == "" {
		return all, nil
	}

	var out []store.Song
	for _, s := range all {
		if s.FolderPath == current || strings.HasPrefix(s.FolderPath, current+"/") {
			out = append(out, s)
		}
	}
	return out, nil
}
