package common

import (
	"errors"
	"testing"
)

func checkExtract(t *testing.T, got, expected string) {
	if got != expected {
		t.Errorf("expected %s, got %s", expected, got)
	}
}

func TestExtract(t *testing.T) {
	name := "S2A_MSIL1C_20220601T103629_N0400_R108_T31UFU_20220601T141501"
	checkExtract(t, ExtractOrbit(name), "R108")
	checkExtract(t, ExtractTile(name), "T31UFU")
	checkExtract(t, ExtractSensingDate(name), "20220601T103629")
	checkExtract(t, ExtractOrbit("no orbit here"), "")
}

func TestSceneID(t *testing.T) {
	if id, err := SceneID("S2B_MSIL1C_20190108T104429_N0207_R008_T32UNF_20190108T124859.SAFE"); err != nil {
		t.Error(err)
	} else if id != "S2B_MSIL1C_20190108T104429_N0207_R008_T32UNF_20190108T124859.SAFE" {
		t.Errorf("unexpected scene id: %s", id)
	}
	var notSentinel ErrNotSentinelProduct
	if _, err := SceneID("LC08_L1TP_199024_20220601_20220608_02_T1"); !errors.As(err, &notSentinel) {
		t.Errorf("expected ErrNotSentinelProduct, got %v", err)
	}
}

func TestGetCollectionFromString(t *testing.T) {
	if c, err := GetCollectionFromString("Sentinel"); err != nil || c != Sentinel {
		t.Errorf("expected Sentinel, got %v (%v)", c, err)
	}
	if c, err := GetCollectionFromString("landsat-8"); err != nil || c != Landsat {
		t.Errorf("expected Landsat, got %v (%v)", c, err)
	}
	var unsupported ErrUnsupportedCollection
	if _, err := GetCollectionFromString("modis"); !errors.As(err, &unsupported) {
		t.Errorf("expected ErrUnsupportedCollection, got %v", err)
	}
}

func TestOriginDay(t *testing.T) {
	if day, err := OriginDay("2022-06-01T10:36:29.024Z"); err != nil {
		t.Error(err)
	} else if day != "2022-06-01" {
		t.Errorf("expected 2022-06-01, got %s", day)
	}
	if _, err := OriginDay("not a date"); err == nil {
		t.Errorf("expected error")
	}
}
