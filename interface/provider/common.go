package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cavaliercoder/grab"

	"github.com/lterlife/acolite-ingester/service"
	"github.com/lterlife/acolite-ingester/service/log"
)

// downloadChunkSize is the copy buffer used when streaming a product to disk
const downloadChunkSize = 8192

// ErrProductNotFound is an error returned when a product is not found or available
type ErrProductNotFound struct {
	Product string
}

func (e ErrProductNotFound) Error() string {
	return fmt.Sprintf("Product not found or unavailable: %s", e.Product)
}

// ErrAuthExpired is returned when the catalogue keeps rejecting the
// credentials after a token refresh (both tokens expired).
type ErrAuthExpired struct {
	Product string
}

func (e ErrAuthExpired) Error() string {
	return fmt.Sprintf("access and refresh tokens expired while downloading %s: re-authenticate", e.Product)
}

func fmtBytes(bytes int64) string {
	v := float64(bytes)
	switch {
	case v > 1<<30:
		return fmt.Sprintf("%.2fGo", v/(1<<30))
	case v > 1<<20:
		return fmt.Sprintf("%.2fMo", v/(1<<20))
	case v > 1<<10:
		return fmt.Sprintf("%.2fko", v/(1<<10))
	default:
		return fmt.Sprintf("%.2fo", v)
	}
}

func displayProgress(ctx context.Context, prefix string, resp *grab.Response, progressPeriod float64) {
	t := time.NewTicker(time.Second)
	defer t.Stop()

	progress, lastBytes, seconds := 0.0, int64(0), int64(0)
	for {
		select {
		case <-t.C:
			seconds++
			if resp.Progress() > progress {
				log.Logger(ctx).Sugar().Debugf("%s: %.2f%% %s/%s (%s/s)", prefix, 100*resp.Progress(), fmtBytes(resp.BytesComplete()), fmtBytes(resp.Size), fmtBytes((resp.BytesComplete()-lastBytes)/seconds))
				seconds = 0
				progress += progressPeriod
				lastBytes = resp.BytesComplete()
			}

		case <-resp.Done:
			return
		}
	}
}

func checkRedirectAndCopyAuth(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	if auth, ok := via[0].Header["Authorization"]; ok {
		req.Header.Add("Authorization", auth[0])
	}
	return nil
}

// download a file with display every 5%, forwarding the Authorization header
// across redirects. Returns the final HTTP status (0 if the request never got
// a response).
func download(ctx context.Context, url, localFile, bearer, displayPrefix string) (int, error) {
	req, err := grab.NewRequest(localFile, url)
	if err != nil {
		return 0, fmt.Errorf("download.NewRequest: %w", err)
	}
	req = req.WithContext(ctx)
	req.HTTPRequest.Header.Add("Authorization", "Bearer "+bearer)
	req.BufferSize = downloadChunkSize

	client := grab.NewClient()
	client.HTTPClient.CheckRedirect = checkRedirectAndCopyAuth
	resp := client.Do(req)

	displayProgress(ctx, displayPrefix, resp, 0.05)

	status := 0
	if resp.HTTPResponse != nil {
		status = resp.HTTPResponse.StatusCode
	}
	if err := resp.Err(); err != nil {
		err = fmt.Errorf("download[%s]: %w", url, err)
		switch status {
		case 408, 429, 500, 501, 502, 503, 504:
			return status, service.MakeTemporary(err)
		case 0:
			return status, service.MakeTemporary(err)
		default:
			return status, err
		}
	}
	return status, nil
}
