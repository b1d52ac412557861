package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/lterlife/acolite-ingester/common"
	"github.com/lterlife/acolite-ingester/interface/catalog/copernicus"
	"github.com/lterlife/acolite-ingester/interface/provider"
	"github.com/lterlife/acolite-ingester/service/log"
	"github.com/lterlife/acolite-ingester/workspace"
)

type config struct {
	BaseDir    string
	Collection string
	Year       int

	StartDate   string
	EndDate     string
	AOI         string
	ProductType string
	CloudCover  float64
	MaxResults  int
	Orbit       string
	Tile        string
	Daily       bool

	Username  string
	Password  string
	TokenFile string

	StatusAddr string
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.BaseDir, "base-dir", "", "base directory of the acolite processing layout")
	flag.StringVar(&config.Collection, "collection", "sentinel", "local collection (sentinel or landsat)")
	flag.IntVar(&config.Year, "year", 0, "year of analysis")

	flag.StringVar(&config.StartDate, "start-date", "", "catalogue start date (YYYY-MM-DD)")
	flag.StringVar(&config.EndDate, "end-date", "", "catalogue end date (YYYY-MM-DD), strictly after start-date")
	flag.StringVar(&config.AOI, "aoi", "", "area of interest as a WKT polygon (SRID 4326)")
	flag.StringVar(&config.ProductType, "product-type", "S2MSI1C", "catalogue product type")
	flag.Float64Var(&config.CloudCover, "cloud-cover", 10.0, "maximum cloud cover percentage")
	flag.IntVar(&config.MaxResults, "max-results", 0, "optional result cap (0 < n <= 1000)")
	flag.StringVar(&config.Orbit, "orbit", "", "only download scenes of this relative orbit, e.g. R051 (optional)")
	flag.StringVar(&config.Tile, "tile", "", "only download scenes of this MGRS tile, e.g. T31UFV (optional, requires -orbit)")
	flag.BoolVar(&config.Daily, "daily", false, "keep only the first scene of each acquisition day")

	flag.StringVar(&config.Username, "copernicus-username", "", "Copernicus Data Space account username")
	flag.StringVar(&config.Password, "copernicus-password", "", "Copernicus Data Space account password")
	flag.StringVar(&config.TokenFile, "token-file", "", "persist token responses to this JSON file (optional)")

	flag.StringVar(&config.StatusAddr, "status-addr", ":9000", "address of the status endpoint")
	flag.Parse()

	if config.BaseDir == "" {
		return nil, fmt.Errorf("missing base-dir config flag")
	}
	if config.Year == 0 {
		return nil, fmt.Errorf("missing year config flag")
	}
	if config.StartDate == "" || config.EndDate == "" {
		return nil, fmt.Errorf("missing start-date/end-date config flags")
	}
	if config.AOI == "" {
		return nil, fmt.Errorf("missing aoi config flag")
	}
	if config.Username == "" || config.Password == "" {
		return nil, fmt.Errorf("missing copernicus-username/copernicus-password config flags")
	}
	if config.Tile != "" && config.Orbit == "" {
		return nil, fmt.Errorf("tile filtering requires the orbit config flag")
	}
	return &config, nil
}

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

type status struct {
	Scenes     int64 `json:"scenes"`
	Downloaded int64 `json:"downloaded"`
}

var currentStatus status

func serveStatus(addr string) {
	router := mux.NewRouter()
	router.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(status{
			Scenes:     atomic.LoadInt64(&currentStatus.Scenes),
			Downloaded: atomic.LoadInt64(&currentStatus.Downloaded),
		})
	}).Methods("GET")
	http.ListenAndServe(addr, router)
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}

	collection, err := common.GetCollectionFromString(config.Collection)
	if err != nil {
		return err
	}
	layout, err := workspace.NewLayout(config.BaseDir, collection, config.Year)
	if err != nil {
		return err
	}

	go serveStatus(config.StatusAddr)

	// Query the catalogue
	catalog := copernicus.Provider{}
	response, err := catalog.Search(ctx, copernicus.SearchQuery{
		StartDate:   config.StartDate,
		EndDate:     config.EndDate,
		Collection:  collection.CatalogueName(),
		AOI:         config.AOI,
		ProductType: config.ProductType,
		CloudCover:  config.CloudCover,
		MaxResults:  config.MaxResults,
	})
	if err != nil {
		return err
	}
	log.Logger(ctx).Sugar().Infof("found %d scenes", len(response.Tiles))

	if config.Orbit != "" {
		if config.Tile != "" {
			response = copernicus.FilterByOrbitAndTile(response, config.Orbit, config.Tile)
		} else {
			response = copernicus.FilterByOrbit(response, config.Orbit)
		}
		log.Logger(ctx).Sugar().Infof("%d scenes after orbit/tile filtering", len(response.Tiles))
	}
	if config.Daily {
		tiles, err := copernicus.UniqueByDate(response)
		if err != nil {
			return err
		}
		response.Tiles = tiles
		log.Logger(ctx).Sugar().Infof("%d scenes after daily deduplication", len(response.Tiles))
	}
	atomic.StoreInt64(&currentStatus.Scenes, int64(len(response.Tiles)))

	// Download into the raw directory
	auth := provider.NewAuthenticator(config.Username, config.Password)
	auth.TokenFile = config.TokenFile
	imageProvider := provider.NewCopernicusImageProvider(auth)
	if config.TokenFile != "" {
		if token, err := provider.LoadToken(config.TokenFile); err == nil {
			imageProvider.UseToken(token)
		}
	}

	ctx = log.With(ctx, "collection", collection.String())
	if err := imageProvider.DownloadAll(ctx, response, layout.RawDir); err != nil {
		return err
	}
	atomic.StoreInt64(&currentStatus.Downloaded, int64(len(response.Tiles)))

	names, err := layout.InputNames()
	if err != nil {
		return err
	}
	log.Logger(ctx).Sugar().Infof("%d archives in %s", len(names), layout.RawDir)
	return nil
}
