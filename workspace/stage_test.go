package workspace

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/lterlife/acolite-ingester/common"
)

const sceneName = "S2A_MSIL1C_20220601T103629_N0400_R108_T31UFU_20220601T141501.SAFE"

func writeZip(t *testing.T, path, sceneID string) {
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w := zip.NewWriter(f)
	fw, err := w.Create(sceneID + "/MTD_MSIL1C.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte("<xml/>")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestStage(t *testing.T) {
	l, err := NewLayout(t.TempDir(), common.Sentinel, 2022)
	if err != nil {
		t.Fatal(err)
	}
	writeZip(t, filepath.Join(l.RawDir, sceneName+".zip"), sceneName)

	if err := l.Stage(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(l.InputDir, sceneName, "MTD_MSIL1C.xml")); err != nil {
		t.Errorf("archive not extracted: %v", err)
	}

	// second run must skip the already staged scene
	if err := l.Stage(context.Background()); err != nil {
		t.Errorf("restaging must be a no-op: %v", err)
	}
	entries, err := os.ReadDir(l.InputDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected a single staged scene, got %d entries", len(entries))
	}
}

func TestStageRejectsNonSentinelArchive(t *testing.T) {
	l, err := NewLayout(t.TempDir(), common.Sentinel, 2022)
	if err != nil {
		t.Fatal(err)
	}
	landsat := "LC08_L1TP_199024_20220601_20220608_02_T1"
	writeZip(t, filepath.Join(l.RawDir, landsat+".zip"), landsat)

	var notSentinel common.ErrNotSentinelProduct
	if err := l.Stage(context.Background()); !errors.As(err, &notSentinel) {
		t.Errorf("expected ErrNotSentinelProduct, got %v", err)
	}
}
