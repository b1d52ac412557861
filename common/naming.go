package common

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Collection is a satellite collection handled by the local processing layout
type Collection int

const (
	Unknown Collection = iota
	Sentinel
	Landsat
)

// Catalogue collections supported by the Copernicus Data Space
const (
	CatalogueSentinel2 = "SENTINEL-2"
	CatalogueSentinel3 = "SENTINEL-3"
	CatalogueLandsat8  = "LANDSAT-8"
)

// ErrUnsupportedCollection is returned by any collection-aware function
// receiving a value outside the supported set.
type ErrUnsupportedCollection struct {
	Collection string
}

func (e ErrUnsupportedCollection) Error() string {
	return fmt.Sprintf("unsupported collection: %s (supported: sentinel, landsat)", e.Collection)
}

func (c Collection) String() string {
	switch c {
	case Sentinel:
		return "sentinel"
	case Landsat:
		return "landsat"
	}
	return "unknown"
}

// GetCollectionFromString returns the collection from the user input
func GetCollectionFromString(input string) (Collection, error) {
	switch strings.ToLower(input) {
	case "sentinel", "sentinel2", "sentinel-2":
		return Sentinel, nil
	case "landsat", "landsat8", "landsat-8":
		return Landsat, nil
	}
	return Unknown, ErrUnsupportedCollection{Collection: input}
}

// CatalogueName returns the collection name as expected by the catalogue API
func (c Collection) CatalogueName() string {
	switch c {
	case Sentinel:
		return CatalogueSentinel2
	case Landsat:
		return CatalogueLandsat8
	}
	return ""
}

// ProductPrefixes returns the product-name prefixes of the collection's
// sensors (used to select L2W outputs). Landsat covers both Landsat-8 and
// Landsat-9 products.
func (c Collection) ProductPrefixes() []string {
	switch c {
	case Sentinel:
		return []string{"S2"}
	case Landsat:
		return []string{"L8", "L9"}
	}
	return nil
}

var (
	orbitRe       = regexp.MustCompile(`R\d+`)
	tileRe        = regexp.MustCompile(`T\d{2}[A-Z]{3}`)
	sensingDateRe = regexp.MustCompile(`\d+T\d+`)
	sentinel2Re   = regexp.MustCompile(`S2.*E`)
)

// ExtractOrbit returns the relative orbit identifier (e.g. "R108") encoded in
// a product name, or an empty string.
func ExtractOrbit(productName string) string {
	return orbitRe.FindString(productName)
}

// ExtractTile returns the MGRS tile identifier (e.g. "T31UFU") encoded in a
// product name, or an empty string.
func ExtractTile(productName string) string {
	return tileRe.FindString(productName)
}

// ExtractSensingDate returns the sensing datetime (e.g. "20220601T103629")
// encoded in a product name, or an empty string.
func ExtractSensingDate(productName string) string {
	return sensingDateRe.FindString(productName)
}

// ErrNotSentinelProduct is returned when a file name does not follow the
// Sentinel-2 product naming convention.
type ErrNotSentinelProduct struct {
	File string
}

func (e ErrNotSentinelProduct) Error() string {
	return fmt.Sprintf("not a Sentinel-2 product name: %s", e.File)
}

// SceneID derives the canonical scene identifier from a Sentinel-2 archive
// base name. Landsat archives do not follow this convention and are rejected
// explicitly (the staging layer only understands Sentinel-2 names).
func SceneID(baseName string) (string, error) {
	id := sentinel2Re.FindString(baseName)
	if id == "" {
		return "", ErrNotSentinelProduct{File: baseName}
	}
	return id, nil
}

// OriginDay returns the date portion (YYYY-MM-DD) of an OriginDate string
func OriginDay(originDate string) (string, error) {
	t, err := dateparse.ParseAny(originDate)
	if err != nil {
		return "", fmt.Errorf("OriginDay[%s]: %w", originDate, err)
	}
	return t.Format("2006-01-02"), nil
}

// ParseDay parses a YYYY-MM-DD date
func ParseDay(day string) (time.Time, error) {
	return time.Parse("2006-01-02", day)
}
