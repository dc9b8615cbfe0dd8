package main

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/bill-extractor/internal/extraction"
)

var (
	handler http.Handler
	once    sync.Once
	initErr error
)

func init() {
	functions.HTTP("ExtractBillData", handleExtractBillData)
}

// main is required by the Go Functions Framework.
func main() {}

// newHandler configures the pipeline from BILL_EXTRACTOR_* environment
// variables only. The clients it opens live as long as the instance.
func newHandler(ctx context.Context) (http.Handler, error) {
	fs := ff.NewFlagSet("bill-extractor-function")
	var (
		authUser = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		flags    = extraction.RegisterFlags(fs)
	)
	if err := ff.Parse(fs, nil, ff.WithEnvVarPrefix(extraction.EnvVarPrefix)); err != nil {
		return nil, err
	}

	service, _, err := extraction.Build(ctx, flags.Config())
	if err != nil {
		return nil, err
	}
	server := extraction.NewServer(service, extraction.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	})
	return server.ExtractHandler(), nil
}

func handleExtractBillData(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		handler, initErr = newHandler(context.Background())
	})
	if initErr != nil {
		slog.Error("Pipeline initialization failed", "error", initErr)
		extraction.WriteFailure(w, initErr)
		return
	}
	handler.ServeHTTP(w, r)
}
