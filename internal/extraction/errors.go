package extraction

import (
	"errors"
	"net/http"

	"github.com/zombor/bill-extractor/internal/bill"
	"github.com/zombor/bill-extractor/internal/fetching"
	"github.com/zombor/bill-extractor/internal/scanning"
)

// Stages reported in error responses
const (
	StageRequest   = "request"
	StageFetch     = "fetch"
	StageRasterize = "rasterize"
	StageModel     = "model"
	StageParse     = "parse"
	StageValidate  = "validate"
	StageInternal  = "internal"
)

// RequestError is a request the API refuses. Status defaults to 400.
type RequestError struct {
	Kind    string
	Message string
	Status  int
}

func (e *RequestError) Error() string {
	return e.Message
}

// Failure is the error body returned by the API
type Failure struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

// Classify maps a pipeline error to the stage that failed, a stable kind
// and an HTTP status
func Classify(err error) Failure {
	var (
		reqErr    *RequestError
		fetchErr  *fetching.Error
		rasterErr *scanning.RasterizationError
		modelErr  *scanning.ModelInvocationError
		parseErr  *bill.ParseError
		schemaErr *bill.SchemaValidationError
	)

	switch {
	case errors.As(err, &reqErr):
		f := Failure{Stage: StageRequest, Kind: reqErr.Kind, Message: reqErr.Message, Status: reqErr.Status}
		if f.Status == 0 {
			f.Status = http.StatusBadRequest
		}
		return f

	case errors.As(err, &fetchErr):
		f := Failure{Stage: StageFetch, Kind: string(fetchErr.Kind), Message: fetchErr.Error()}
		switch fetchErr.Kind {
		case fetching.InvalidURL:
			f.Stage = StageRequest
			f.Status = http.StatusBadRequest
		case fetching.UnsupportedType:
			f.Status = http.StatusUnsupportedMediaType
		case fetching.TooLarge:
			f.Status = http.StatusRequestEntityTooLarge
		default:
			f.Status = http.StatusBadGateway
		}
		return f

	case errors.As(err, &rasterErr):
		f := Failure{Stage: StageRasterize, Kind: string(rasterErr.Kind), Message: rasterErr.Error(), Status: http.StatusUnprocessableEntity}
		if rasterErr.Kind == scanning.RasterOversize {
			f.Status = http.StatusRequestEntityTooLarge
		}
		return f

	case errors.As(err, &modelErr):
		f := Failure{Stage: StageModel, Kind: string(modelErr.Kind), Message: modelErr.Error(), Status: http.StatusBadGateway}
		switch modelErr.Kind {
		case scanning.ModelRateLimited:
			f.Status = http.StatusTooManyRequests
		case scanning.ModelTimeout:
			f.Status = http.StatusGatewayTimeout
		}
		return f

	case errors.As(err, &parseErr):
		return Failure{Stage: StageParse, Kind: "parse_error", Message: parseErr.Error(), Status: http.StatusBadGateway}

	case errors.As(err, &schemaErr):
		return Failure{Stage: StageValidate, Kind: "schema_validation", Message: schemaErr.Error(), Status: http.StatusBadGateway}
	}

	return Failure{Stage: StageInternal, Kind: "internal", Message: "internal error", Status: http.StatusInternalServerError}
}
