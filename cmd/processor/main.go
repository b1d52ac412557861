package main

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/lterlife/acolite-ingester/acolite"
	"github.com/lterlife/acolite-ingester/common"
	"github.com/lterlife/acolite-ingester/interface/storage/s3"
	"github.com/lterlife/acolite-ingester/service/log"
	"github.com/lterlife/acolite-ingester/workspace"
)

type config struct {
	BaseDir    string
	Collection string
	Year       int

	AcoliteBin      string
	AcoliteSettings []string

	Upload      bool
	FetchTile   string
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.BaseDir, "base-dir", "", "base directory of the acolite processing layout")
	flag.StringVar(&config.Collection, "collection", "sentinel", "local collection (sentinel or landsat)")
	flag.IntVar(&config.Year, "year", 0, "year of analysis")

	flag.StringVar(&config.AcoliteBin, "acolite-bin", "acolite", "acolite launcher")
	settings := flag.String("acolite-settings", "l2w_parameters=chl_oc3", "comma-separated key=value acolite settings (inputfile/output are set per scene)")

	flag.BoolVar(&config.Upload, "upload", false, "upload results to the S3 bucket after processing")
	flag.StringVar(&config.FetchTile, "fetch-tile", "", "fetch stored results of this MGRS tile into the output directory instead of processing")
	flag.StringVar(&config.S3Endpoint, "s3-endpoint", "", "S3-compatible endpoint (empty for AWS)")
	flag.StringVar(&config.S3Region, "s3-region", "eu-west-1", "S3 region")
	flag.StringVar(&config.S3AccessKey, "s3-access-key", "", "S3 access key")
	flag.StringVar(&config.S3SecretKey, "s3-secret-key", "", "S3 secret key")
	flag.StringVar(&config.S3Bucket, "s3-bucket", "", "S3 bucket for acolite outputs")
	flag.Parse()

	if config.BaseDir == "" {
		return nil, fmt.Errorf("missing base-dir config flag")
	}
	if config.Year == 0 {
		return nil, fmt.Errorf("missing year config flag")
	}
	if *settings != "" {
		config.AcoliteSettings = strings.Split(*settings, ",")
	}
	if (config.Upload || config.FetchTile != "") && config.S3Bucket == "" {
		return nil, fmt.Errorf("missing s3-bucket config flag")
	}
	return &config, nil
}

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func parseSettings(entries []string) (acolite.Settings, error) {
	settings := acolite.Settings{}
	for _, entry := range entries {
		kv := strings.SplitN(entry, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed acolite setting %q, must be key=value", entry)
		}
		settings[kv[0]] = kv[1]
	}
	return settings, nil
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
	settings, err := parseSettings(config.AcoliteSettings)
	if err != nil {
		return err
	}

	ctx = log.With(ctx, "collection", collection.String())

	// Fetch mode: pull previously stored results back into the output tree
	if config.FetchTile != "" {
		store, err := newStore(ctx, config)
		if err != nil {
			return err
		}
		return store.FetchResults(ctx, config.FetchTile, collection, config.Year, layout.OutputDir)
	}

	// Stage raw archives into the input directory
	if err := layout.Stage(ctx); err != nil {
		return err
	}

	names, err := layout.InputNames()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		log.Logger(ctx).Warn("nothing to process in " + layout.RawDir)
		return nil
	}
	inputs := make([]string, len(names))
	for i, name := range names {
		inputs[i] = filepath.Join(layout.InputDir, name)
	}
	outputs, err := layout.OutputDirs(names)
	if err != nil {
		return err
	}

	// Batch atmospheric correction
	runner := acolite.Runner{Bin: config.AcoliteBin}
	if err := runner.RunBatch(ctx, settings, inputs, outputs); err != nil {
		return err
	}
	if remaining, err := acolite.FindUnprocessed(layout.OutputDir); err != nil {
		return err
	} else if len(remaining) > 0 {
		log.Logger(ctx).Sugar().Warnf("%d scenes without L2W output: %v", len(remaining), remaining)
	}

	if !config.Upload {
		return nil
	}
	store, err := newStore(ctx, config)
	if err != nil {
		return err
	}
	return store.UploadResults(ctx, layout.OutputDir, collection, config.Year)
}

func newStore(ctx context.Context, config *config) (*s3.Store, error) {
	return s3.NewStore(ctx, s3.Config{
		Endpoint:  config.S3Endpoint,
		Region:    config.S3Region,
		AccessKey: config.S3AccessKey,
		SecretKey: config.S3SecretKey,
		Bucket:    config.S3Bucket,
	})
}
