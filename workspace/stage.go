package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archiver"

	"github.com/lterlife/acolite-ingester/common"
	"github.com/lterlife/acolite-ingester/service"
	"github.com/lterlife/acolite-ingester/service/log"
)

// Stage extracts every zip archive of the raw directory whose scene
// identifier is not already an entry of the input directory. Archive names
// must follow the Sentinel-2 product convention: any other name (e.g. a
// Landsat archive routed through the raw directory) fails with
// common.ErrNotSentinelProduct naming the file.
func (l *Layout) Stage(ctx context.Context) error {
	entries, err := os.ReadDir(l.RawDir)
	if err != nil {
		return fmt.Errorf("Stage: %w", err)
	}
	staged, err := entriesIn(l.InputDir)
	if err != nil {
		return fmt.Errorf("Stage: %w", err)
	}

	n := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".zip") {
			continue
		}
		sceneID, err := common.SceneID(strings.TrimSuffix(entry.Name(), ".zip"))
		if err != nil {
			return fmt.Errorf("Stage: %w", err)
		}
		if staged.Exists(sceneID) {
			log.Logger(ctx).Sugar().Debugf("%s already staged, skipping", sceneID)
			continue
		}
		if err := unarchive(filepath.Join(l.RawDir, entry.Name()), l.InputDir); err != nil {
			return fmt.Errorf("Stage[%s]: %w", entry.Name(), err)
		}
		n++
		log.Logger(ctx).Sugar().Infof("%d: staged %s", n, sceneID)
	}
	return nil
}

func entriesIn(dir string) (service.StringSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	set := service.StringSet{}
	for _, entry := range entries {
		set.Push(entry.Name())
	}
	return set, nil
}

// unarchive file with basic check. All errors are temporary.
func unarchive(localZip, localDir string) error {
	tmpdir, err := os.MkdirTemp(localDir, filepath.Base(localZip))
	if err != nil {
		return service.MakeTemporary(err)
	}
	defer os.RemoveAll(tmpdir)
	if err := archiver.Unarchive(localZip, tmpdir); err != nil {
		return service.MakeTemporary(err)
	}
	files, err := os.ReadDir(tmpdir)
	if err != nil {
		return service.MakeTemporary(err)
	}
	if len(files) == 0 {
		return service.MakeTemporary(fmt.Errorf("empty zip"))
	}
	for _, f := range files {
		os.Rename(filepath.Join(tmpdir, f.Name()), filepath.Join(localDir, f.Name()))
	}
	return nil
}
