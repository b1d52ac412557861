package copernicus

import (
	"context"
	"encoding/json"
	"fmt"
	neturl "net/url"
	"strings"

	"github.com/go-spatial/geom/encoding/geojson"

	"github.com/lterlife/acolite-ingester/common"
	"github.com/lterlife/acolite-ingester/service"
	"github.com/lterlife/acolite-ingester/service/log"
)

const (
	// ODataQueryURL is the Copernicus Data Space products endpoint
	ODataQueryURL = "https://catalogue.dataspace.copernicus.eu/odata/v1/Products?$filter="
	// MaxPageResults is the $top limit accepted by the catalogue
	MaxPageResults = 1000
)

// Tile is a single product entry of the remote catalogue
type Tile struct {
	Id           string           `json:"Id"`
	Name         string           `json:"Name"`
	OriginDate   string           `json:"OriginDate"`
	GeoFootprint geojson.Geometry `json:"GeoFootprint,omitempty"`
}

// Response is a catalogue result set. After Search, Tiles contains the
// concatenation of all pages and NextLink is empty.
type Response struct {
	Context  string `json:"@odata.context"`
	Tiles    []Tile `json:"value"`
	NextLink string `json:"@odata.nextLink,omitempty"`
}

// SearchQuery describes one catalogue search
type SearchQuery struct {
	StartDate   string // YYYY-MM-DD
	EndDate     string // YYYY-MM-DD, strictly after StartDate
	Collection  string // SENTINEL-2, SENTINEL-3 or LANDSAT-8
	AOI         string // WKT polygon, SRID 4326
	ProductType string
	CloudCover  float64
	MaxResults  int // optional, (0, MaxPageResults]
}

var catalogueCollections = service.StringSet{
	common.CatalogueSentinel2: {},
	common.CatalogueSentinel3: {},
	common.CatalogueLandsat8:  {},
}

func (q SearchQuery) validate() error {
	start, err := common.ParseDay(q.StartDate)
	if err != nil {
		return fmt.Errorf("start date: %w", err)
	}
	end, err := common.ParseDay(q.EndDate)
	if err != nil {
		return fmt.Errorf("end date: %w", err)
	}
	if !end.After(start) {
		return fmt.Errorf("end date %s must be strictly after start date %s", q.EndDate, q.StartDate)
	}
	if !catalogueCollections.Exists(q.Collection) {
		return fmt.Errorf("collection not present in catalogue: %s (supported: %s)",
			q.Collection, strings.Join(catalogueCollections.Slice(), ", "))
	}
	return nil
}

func (q SearchQuery) filter() string {
	parameters := []string{
		fmt.Sprintf("Collection/Name eq '%s'", q.Collection),
		fmt.Sprintf("Attributes/OData.CSC.DoubleAttribute/any(att:att/Name eq 'cloudCover' and att/OData.CSC.DoubleAttribute/Value lt %g)", q.CloudCover),
		fmt.Sprintf("Attributes/OData.CSC.StringAttribute/any(att:att/Name eq 'productType' and att/OData.CSC.StringAttribute/Value eq '%s')", q.ProductType),
		fmt.Sprintf("OData.CSC.Intersects(area=geography'SRID=4326;%s')", q.AOI),
		fmt.Sprintf("ContentDate/Start gt %sT00:00:00.000Z", q.StartDate),
		fmt.Sprintf("ContentDate/Start lt %sT00:00:00.000Z", q.EndDate),
	}
	return strings.Join(parameters, " and ")
}

// Provider queries the Copernicus Data Space OData catalogue
type Provider struct {
	QueryURL string // defaults to ODataQueryURL
}

// Search issues the query and follows @odata.nextLink until exhausted,
// returning the concatenated result set.
// It fails before any network request when the query is invalid.
func (p *Provider) Search(ctx context.Context, q SearchQuery) (*Response, error) {
	if err := q.validate(); err != nil {
		return nil, fmt.Errorf("Copernicus.Search: %w", err)
	}

	baseurl := p.QueryURL
	if baseurl == "" {
		baseurl = ODataQueryURL
	}
	url := baseurl + neturl.QueryEscape(q.filter()) + "&$orderby=" + neturl.QueryEscape("ContentDate/Start desc")
	if q.MaxResults > 0 && q.MaxResults <= MaxPageResults {
		url += fmt.Sprintf("&$top=%d", q.MaxResults)
	}

	combined, err := p.queryPage(url)
	if err != nil {
		return nil, fmt.Errorf("Copernicus.Search[%s]: %w", q.Collection, err)
	}

	for page := 2; combined.NextLink != ""; page++ {
		log.Logger(ctx).Sugar().Debugf("[Copernicus] search page %d", page)
		results, err := p.queryPage(combined.NextLink)
		if err != nil {
			return nil, fmt.Errorf("Copernicus.Search[%s] page %d: %w", q.Collection, page, err)
		}
		log.Logger(ctx).Sugar().Infof("[Copernicus] found %d more scenes", len(results.Tiles))
		combined.Tiles = append(combined.Tiles, results.Tiles...)
		combined.NextLink = results.NextLink
	}

	return combined, nil
}

func (p *Provider) queryPage(url string) (*Response, error) {
	jsonResults, err := service.GetBodyRetry(url, 3)
	if err != nil {
		return nil, fmt.Errorf("queryPage: %w", err)
	}
	results := &Response{}
	if err := json.Unmarshal(jsonResults, results); err != nil {
		return nil, fmt.Errorf("queryPage.Unmarshal: %w (response: %s)", err, jsonResults)
	}
	return results, nil
}

// UniqueByDate returns one tile per acquisition date (date portion of
// OriginDate), keeping the first occurrence in catalogue order.
func UniqueByDate(r *Response) ([]Tile, error) {
	seen := service.StringSet{}
	var tiles []Tile
	for _, tile := range r.Tiles {
		day, err := common.OriginDay(tile.OriginDate)
		if err != nil {
			return nil, fmt.Errorf("UniqueByDate[%s]: %w", tile.Name, err)
		}
		if !seen.Exists(day) {
			seen.Push(day)
			tiles = append(tiles, tile)
		}
	}
	return tiles, nil
}
