package scoring

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/bdougie/annotator/internal/models"
)

var (
	ErrMalformedGroundTruth = errors.New("malformed ground truth")
	ErrGroundTruthNotFound  = errors.New("ground truth not found")
)

// ParseGroundTruth reads one box per line as four whitespace-separated
// integers "x_min y_min x_max y_max". Blank lines are skipped.
func ParseGroundTruth(r io.Reader) ([]models.Box, error) {
	var boxes []models.Box
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 4 {
			return nil, fmt.Errorf("line %d: expected 4 integers, got %d fields: %w", line, len(fields), ErrMalformedGroundTruth)
		}
		var coords [4]float64
		for i, f := range fields {
			v, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("line %d: %q is not an integer: %w", line, f, ErrMalformedGroundTruth)
			}
			coords[i] = float64(v)
		}
		boxes = append(boxes, models.Box{XMin: coords[0], YMin: coords[1], XMax: coords[2], YMax: coords[3]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ground truth: %w", err)
	}
	return boxes, nil
}

// GroundTruthStore loads <dir>/<folder>.txt files and caches the parsed
// boxes. Ground truth is immutable for the life of the process.
type GroundTruthStore struct {
	dir   string
	cache sync.Map // folder -> []models.Box
}

// NewGroundTruthStore creates a store rooted at dir.
func NewGroundTruthStore(dir string) *GroundTruthStore {
	return &GroundTruthStore{dir: dir}
}

// Load returns the ground-truth boxes of a clip folder.
func (s *GroundTruthStore) Load(folder string) ([]models.Box, error) {
	if folder == "" || folder == "." || folder == ".." || filepath.Base(folder) != folder {
		return nil, fmt.Errorf("clip folder %q: %w", folder, ErrGroundTruthNotFound)
	}
	if cached, ok := s.cache.Load(folder); ok {
		if boxes, valid := cached.([]models.Box); valid {
			return boxes, nil
		}
	}

	path := filepath.Join(s.dir, folder+".txt")
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("clip folder %q: %w", folder, ErrGroundTruthNotFound)
		}
		return nil, fmt.Errorf("open ground truth %q: %w", path, err)
	}
	defer file.Close()

	boxes, err := ParseGroundTruth(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.cache.Store(folder, boxes)
	return boxes, nil
}
