package provider

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/lterlife/acolite-ingester/interface/catalog/copernicus"
	"github.com/lterlife/acolite-ingester/service"
	"github.com/lterlife/acolite-ingester/service/log"
)

const copernicusDownloadProduct = "https://zipper.dataspace.copernicus.eu/odata/v1/Products(%s)/$value"

// retry-once statuses: the zipper answers one of these when the access token
// is stale or stripped on redirect
var authFailureStatus = map[int]bool{301: true, 302: true, 303: true, 307: true, 401: true}

// CopernicusImageProvider downloads catalogue products from the CDSE zipper
// endpoint with bearer-token authorization.
type CopernicusImageProvider struct {
	auth  *Authenticator
	token *Token

	// DownloadURL is a format string receiving the product Id. Defaults to
	// the CDSE zipper endpoint.
	DownloadURL string
}

// NewCopernicusImageProvider creates a new image provider using auth for
// token acquisition and refresh
func NewCopernicusImageProvider(auth *Authenticator) *CopernicusImageProvider {
	return &CopernicusImageProvider{auth: auth, DownloadURL: copernicusDownloadProduct}
}

// Name implements ImageProvider
func (ip *CopernicusImageProvider) Name() string {
	return "Copernicus"
}

// Token returns the current token (nil before the first download)
func (ip *CopernicusImageProvider) Token() *Token {
	return ip.token
}

// UseToken seeds a previously persisted token. While it is still valid, no
// password grant is issued; once expired it is refreshed as usual.
func (ip *CopernicusImageProvider) UseToken(token *Token) {
	ip.token = token
}

// DownloadAll streams every tile of the catalogue response into localDir as
// <Name>.zip, skipping tiles already present (compared by zip-stripped file
// name, without issuing any request). On an authentication failure it
// refreshes the token once and retries the same request once.
func (ip *CopernicusImageProvider) DownloadAll(ctx context.Context, r *copernicus.Response, localDir string) error {
	existing, err := zipNamesIn(localDir)
	if err != nil {
		return fmt.Errorf("CopernicusImageProvider.%w", err)
	}

	for _, tile := range r.Tiles {
		if existing.Exists(tile.Name) {
			log.Logger(ctx).Sugar().Infof("%s already downloaded, skipping", tile.Name)
			continue
		}
		if ip.token, err = ip.auth.EnsureValid(ctx, ip.token); err != nil {
			return fmt.Errorf("CopernicusImageProvider.%w", err)
		}
		if err := ip.downloadTile(ctx, tile, localDir); err != nil {
			return fmt.Errorf("CopernicusImageProvider.%w", err)
		}
		log.Logger(ctx).Sugar().Infof("downloaded %s", tile.Name)
	}
	log.Logger(ctx).Sugar().Infof("download completed in %s", localDir)
	return nil
}

func (ip *CopernicusImageProvider) downloadTile(ctx context.Context, tile copernicus.Tile, localDir string) error {
	url := fmt.Sprintf(ip.DownloadURL, tile.Id)
	localZip := path.Join(localDir, tile.Name+".zip")

	status, err := download(ctx, url, localZip, ip.token.AccessToken, ip.Name()+":"+tile.Name)
	if err == nil {
		return nil
	}
	if !authFailureStatus[status] {
		if status == 404 {
			return ErrProductNotFound{Product: tile.Name}
		}
		return err
	}

	log.Logger(ctx).Warn("authentication failure, retrying with a refreshed token", zap.Int("status", status))
	if ip.token, err = ip.auth.Refresh(ctx, ip.token); err != nil {
		return err
	}
	status, err = download(ctx, url, localZip, ip.token.AccessToken, ip.Name()+":"+tile.Name)
	if err != nil && (status == 400 || authFailureStatus[status]) {
		return ErrAuthExpired{Product: tile.Name}
	}
	return err
}

// zipNamesIn returns the names of the zip archives of dir, extension stripped
func zipNamesIn(dir string) (service.StringSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("zipNamesIn: %w", err)
	}
	names := service.StringSet{}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".zip") {
			names.Push(strings.TrimSuffix(entry.Name(), ".zip"))
		}
	}
	return names, nil
}
