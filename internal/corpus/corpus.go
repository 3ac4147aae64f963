// Package corpus enumerates clip folders and addresses clips, blocks and
// frames within them.
//
// A clip folder is valid when it contains the first frame file. Valid
// folders are sorted lexicographically by name and numbered from zero;
// that numbering is the corpus index every other package relies on, so
// the same folder set always yields the same assignment.
package corpus

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bdougie/annotator/internal/models"
)

var (
	ErrCorpusEmpty   = errors.New("corpus contains no valid clip folders")
	ErrClipNotFound  = errors.New("clip not found")
	ErrFrameNotFound = errors.New("frame not found")
)

// Layout describes how frames are named inside a clip folder.
type Layout struct {
	FrameExtension string
	FramePadding   int
}

// DefaultLayout matches folders of 00001.jpeg, 00002.jpeg, ...
func DefaultLayout() Layout {
	return Layout{FrameExtension: ".jpeg", FramePadding: 5}
}

// FrameName returns the file name of the zero-based frame.
func (l Layout) FrameName(frame int) string {
	return fmt.Sprintf("%0*d%s", l.FramePadding, frame+1, l.FrameExtension)
}

// Index is an enumerated corpus. It is immutable after Enumerate.
type Index struct {
	root          string
	layout        Layout
	clipsPerBlock int
	clips         []models.Clip
	byFolder      map[string]int
}

// Enumerate scans root for clip folders containing a first frame.
func Enumerate(root string, layout Layout, clipsPerBlock int) (*Index, error) {
	if clipsPerBlock <= 0 {
		return nil, fmt.Errorf("clips per block must be positive, got %d", clipsPerBlock)
	}
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("corpus directory %q: %w", root, ErrCorpusEmpty)
		}
		return nil, fmt.Errorf("stat corpus directory %q: %w", root, err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read corpus directory %q: %w", root, err)
	}

	var folders []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		firstFrame := filepath.Join(root, entry.Name(), layout.FrameName(0))
		if info, err := os.Stat(firstFrame); err == nil && !info.IsDir() {
			folders = append(folders, entry.Name())
		}
	}
	if len(folders) == 0 {
		return nil, fmt.Errorf("corpus directory %q: %w", root, ErrCorpusEmpty)
	}
	sort.Strings(folders)

	return FromFolders(root, folders, layout, clipsPerBlock), nil
}

// FromFolders builds an index from an already validated, sorted folder list.
func FromFolders(root string, folders []string, layout Layout, clipsPerBlock int) *Index {
	ix := &Index{
		root:          root,
		layout:        layout,
		clipsPerBlock: clipsPerBlock,
		clips:         make([]models.Clip, 0, len(folders)),
		byFolder:      make(map[string]int, len(folders)),
	}
	for i, name := range folders {
		ix.clips = append(ix.clips, models.Clip{
			Index:  i,
			Folder: name,
			Path:   filepath.Join(root, name),
		})
		ix.byFolder[name] = i
	}
	return ix
}

// Root returns the scanned directory.
func (ix *Index) Root() string { return ix.root }

// Len returns the number of valid clips.
func (ix *Index) Len() int { return len(ix.clips) }

// ClipsPerBlock returns the block size.
func (ix *Index) ClipsPerBlock() int { return ix.clipsPerBlock }

// Clips returns a copy of the ordered clip list.
func (ix *Index) Clips() []models.Clip {
	out := make([]models.Clip, len(ix.clips))
	copy(out, ix.clips)
	return out
}

// NumBlocks returns floor(len / clipsPerBlock). Trailing clips that do not
// fill a block belong to no block.
func (ix *Index) NumBlocks() int { return NumBlocks(len(ix.clips), ix.clipsPerBlock) }

// Clip returns the clip at a zero-based corpus index.
func (ix *Index) Clip(index int) (models.Clip, error) {
	if index < 0 || index >= len(ix.clips) {
		return models.Clip{}, fmt.Errorf("clip %d: %w", index, ErrClipNotFound)
	}
	return ix.clips[index], nil
}

// Lookup finds a clip by folder name.
func (ix *Index) Lookup(folder string) (models.Clip, bool) {
	i, ok := ix.byFolder[folder]
	if !ok {
		return models.Clip{}, false
	}
	return ix.clips[i], true
}

// Block returns the block descriptor and its clips.
func (ix *Index) Block(block int) (models.Block, []models.Clip, error) {
	if block < 0 || block >= ix.NumBlocks() {
		return models.Block{}, nil, fmt.Errorf("block %d out of range [0,%d)", block, ix.NumBlocks())
	}
	b := models.Block{Index: block, Size: ix.clipsPerBlock}
	return b, ix.clips[b.First() : b.Last()+1], nil
}

// Blocks returns every full block descriptor in order.
func (ix *Index) Blocks() []models.Block {
	n := ix.NumBlocks()
	blocks := make([]models.Block, n)
	for i := range blocks {
		blocks[i] = models.Block{Index: i, Size: ix.clipsPerBlock}
	}
	return blocks
}

// FramePath returns the path of a zero-based frame, checking it exists.
func (ix *Index) FramePath(clipIndex, frame int) (string, error) {
	clip, err := ix.Clip(clipIndex)
	if err != nil {
		return "", err
	}
	if frame < 0 {
		return "", fmt.Errorf("clip %d frame %d: %w", clipIndex, frame, ErrFrameNotFound)
	}
	path := filepath.Join(clip.Path, ix.layout.FrameName(frame))
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("clip %d frame %d: %w", clipIndex, frame, ErrFrameNotFound)
	}
	return path, nil
}

// FrameCount counts consecutive frames starting from the first one.
func (ix *Index) FrameCount(clipIndex int) (int, error) {
	clip, err := ix.Clip(clipIndex)
	if err != nil {
		return 0, err
	}
	count := 0
	for {
		info, err := os.Stat(filepath.Join(clip.Path, ix.layout.FrameName(count)))
		if err != nil || info.IsDir() {
			return count, nil
		}
		count++
	}
}

// NumBlocks returns how many full blocks total clips form.
func NumBlocks(total, clipsPerBlock int) int {
	if clipsPerBlock <= 0 || total <= 0 {
		return 0
	}
	return total / clipsPerBlock
}

// Locate splits a zero-based corpus index into block and local index.
func Locate(index, clipsPerBlock int) (block, local int) {
	return index / clipsPerBlock, index % clipsPerBlock
}
