package source

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/lance6716/plan-replayer/pkg/util"
	"github.com/pingcap/errors"
)

// ServerFlag is one entry of the flags endpoint of a server.
type ServerFlag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Type  string `json:"type,omitempty"`
}

// FlagsResult is the outcome of FetchServerFlags. Err is of KindBestEffort and
// callers usually log it and go on with OrEmpty.
type FlagsResult struct {
	Flags []ServerFlag
	Err   error
}

// OrEmpty returns the flags, or nothing if the fetch failed.
func (r FlagsResult) OrEmpty() []ServerFlag {
	if r.Err != nil {
		return nil
	}
	return r.Flags
}

type flagsResponse struct {
	Flags []ServerFlag `json:"flags"`
}

// FetchServerFlags reads the JSON flags endpoint at url, like
// http://127.0.0.1:9000/api/v1/varz of a YugabyteDB tserver.
func FetchServerFlags(ctx context.Context, client *http.Client, url string) FlagsResult {
	flags, err := fetchServerFlags(ctx, client, url)
	if err != nil {
		return FlagsResult{Err: util.WrapKind(util.KindBestEffort, err)}
	}
	return FlagsResult{Flags: flags}
}

func fetchServerFlags(ctx context.Context, client *http.Client, url string) ([]ServerFlag, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Annotatef(err, "build request for %s", url)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Annotatef(err, "fetch server flags from %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("fetch server flags from %s: status %d: %s", url, resp.StatusCode, body)
	}
	var r flagsResponse
	if err = json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, errors.Annotatef(err, "decode server flags from %s", url)
	}
	return r.Flags, nil
}
