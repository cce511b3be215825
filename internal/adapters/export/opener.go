package export

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

type Opener struct {
	httpClient *http.Client
}

func NewOpener() *Opener {
	// no overall timeout: exports are streamed for as long as the context allows
	return &Opener{httpClient: &http.Client{}}
}

func (o *Opener) Open(ctx context.Context, location string) (io.ReadCloser, int64, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return o.openHTTP(ctx, location)
	}

	f, err := os.Open(strings.TrimPrefix(location, "file://"))
	if err != nil {
		return nil, 0, err
	}
	size := int64(-1)
	if info, err := f.Stat(); err == nil && info.Mode().IsRegular() {
		size = info.Size()
	}
	return f, size, nil
}

func (o *Opener) openHTTP(ctx context.Context, location string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode >= 400 {
		_ = resp.Body.Close()
		return nil, 0, fmt.Errorf("download %s: status %d", location, resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}
