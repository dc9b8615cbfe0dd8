package extraction

import (
	"errors"
	"fmt"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/bill-extractor/internal/bill"
	"github.com/zombor/bill-extractor/internal/fetching"
	"github.com/zombor/bill-extractor/internal/scanning"
)

var _ = Describe("Classify", func() {
	DescribeTable("maps errors to stage, kind and status",
		func(err error, stage, kind string, status int) {
			f := Classify(err)
			Expect(f.Stage).To(Equal(stage))
			Expect(f.Kind).To(Equal(kind))
			Expect(f.Status).To(Equal(status))
			Expect(f.Message).NotTo(BeEmpty())
		},
		Entry("bad request body", &RequestError{Kind: "invalid_body", Message: "bad"}, StageRequest, "invalid_body", http.StatusBadRequest),
		Entry("missing credentials", &RequestError{Kind: "unauthorized", Message: "no", Status: http.StatusUnauthorized}, StageRequest, "unauthorized", http.StatusUnauthorized),
		Entry("invalid URL", &fetching.Error{Kind: fetching.InvalidURL}, StageRequest, "invalid_url", http.StatusBadRequest),
		Entry("unreachable host", &fetching.Error{Kind: fetching.Unreachable}, StageFetch, "unreachable", http.StatusBadGateway),
		Entry("upstream 404", &fetching.Error{Kind: fetching.HTTPStatus, StatusCode: 404}, StageFetch, "http_status", http.StatusBadGateway),
		Entry("unsupported type", &fetching.Error{Kind: fetching.UnsupportedType}, StageFetch, "unsupported_type", http.StatusUnsupportedMediaType),
		Entry("document too large", &fetching.Error{Kind: fetching.TooLarge}, StageFetch, "too_large", http.StatusRequestEntityTooLarge),
		Entry("corrupt document", &scanning.RasterizationError{Kind: scanning.RasterCorrupt}, StageRasterize, "corrupt", http.StatusUnprocessableEntity),
		Entry("empty document", &scanning.RasterizationError{Kind: scanning.RasterEmpty}, StageRasterize, "empty", http.StatusUnprocessableEntity),
		Entry("oversize document", &scanning.RasterizationError{Kind: scanning.RasterOversize}, StageRasterize, "oversize", http.StatusRequestEntityTooLarge),
		Entry("model transport", &scanning.ModelInvocationError{Kind: scanning.ModelTransport}, StageModel, "transport", http.StatusBadGateway),
		Entry("model rate limited", &scanning.ModelInvocationError{Kind: scanning.ModelRateLimited}, StageModel, "rate_limited", http.StatusTooManyRequests),
		Entry("model timeout", &scanning.ModelInvocationError{Kind: scanning.ModelTimeout}, StageModel, "timeout", http.StatusGatewayTimeout),
		Entry("model empty response", &scanning.ModelInvocationError{Kind: scanning.ModelEmptyResponse}, StageModel, "empty_response", http.StatusBadGateway),
		Entry("unparseable response", &bill.ParseError{Reason: "no JSON"}, StageParse, "parse_error", http.StatusBadGateway),
		Entry("schema violation", &bill.SchemaValidationError{Problems: []string{"/line_items: missing"}}, StageValidate, "schema_validation", http.StatusBadGateway),
		Entry("wrapped stage error", fmt.Errorf("extracting: %w", &fetching.Error{Kind: fetching.TooLarge}), StageFetch, "too_large", http.StatusRequestEntityTooLarge),
		Entry("anything else", errors.New("boom"), StageInternal, "internal", http.StatusInternalServerError),
	)

	It("should not leak internal error details", func() {
		Expect(Classify(errors.New("secret path /var/run")).Message).NotTo(ContainSubstring("secret"))
	})
})
