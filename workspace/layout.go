// Package workspace manages the fixed on-disk layout of the acolite
// processing pipeline:
//
//	<base>/app_acolite/raw/<collection>/<year>                 downloaded archives
//	<base>/app_acolite/processed/inputdir/<collection>/<year>  staged (unzipped) scenes
//	<base>/app_acolite/processed/outputdir/<collection>/<year> correction outputs
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lterlife/acolite-ingester/common"
)

// ErrMissingArgument is returned by NewLayout when a required argument is empty
type ErrMissingArgument struct {
	Argument string
}

func (e ErrMissingArgument) Error() string {
	return fmt.Sprintf("missing required argument: %s", e.Argument)
}

// Layout is the derived directory tree for one (collection, year)
type Layout struct {
	Year       int
	Collection common.Collection
	RawDir     string
	InputDir   string
	OutputDir  string
}

// NewLayout derives the three-tier directory tree from (baseDir, collection,
// year) and creates each directory (with parents) if absent. Re-running is a
// no-op when the paths exist. There is no rollback on partial failure.
func NewLayout(baseDir string, collection common.Collection, year int) (*Layout, error) {
	if baseDir == "" {
		return nil, ErrMissingArgument{Argument: "baseDir"}
	}
	if collection != common.Sentinel && collection != common.Landsat {
		return nil, common.ErrUnsupportedCollection{Collection: collection.String()}
	}
	if year == 0 {
		return nil, ErrMissingArgument{Argument: "year"}
	}

	suffix := filepath.Join(collection.String(), fmt.Sprintf("%d", year))
	l := &Layout{
		Year:       year,
		Collection: collection,
		RawDir:     filepath.Join(baseDir, "app_acolite", "raw", suffix),
		InputDir:   filepath.Join(baseDir, "app_acolite", "processed", "inputdir", suffix),
		OutputDir:  filepath.Join(baseDir, "app_acolite", "processed", "outputdir", suffix),
	}

	for _, dir := range []string{l.RawDir, l.InputDir, l.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("NewLayout.MkdirAll[%s]: %w", dir, err)
		}
	}
	return l, nil
}

// InputNames returns the base names (extension stripped) of the zip archives
// present in the raw directory.
func (l *Layout) InputNames() ([]string, error) {
	entries, err := os.ReadDir(l.RawDir)
	if err != nil {
		return nil, fmt.Errorf("InputNames: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".zip") {
			names = append(names, strings.TrimSuffix(entry.Name(), ".zip"))
		}
	}
	return names, nil
}

// OutputDirs creates (idempotently) one output directory per input name and
// returns their paths, in input order.
func (l *Layout) OutputDirs(names []string) ([]string, error) {
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(l.OutputDir, name)
		if err := os.MkdirAll(paths[i], 0755); err != nil {
			return nil, fmt.Errorf("OutputDirs.MkdirAll[%s]: %w", paths[i], err)
		}
	}
	return paths, nil
}
