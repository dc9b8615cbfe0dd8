package scanning

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		scanner *Ollama
		payload Payload
		resp    *Response
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var nerr error
		scanner, nerr = NewOllama(server.URL(), "qwen2.5vl")
		Expect(nerr).NotTo(HaveOccurred())

		payload = Payload{
			System:       "system prompt",
			Instructions: "extract the bill",
			Pages: Document{
				{Index: 1, MIMEType: "image/png", Data: []byte("first")},
				{Index: 2, MIMEType: "image/png", Data: []byte("second")},
			},
		}
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		resp, err = scanner.Scan(context.Background(), payload)
	})

	When("the model answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyJSONRepresenting(ollamaChatRequest{
					Model:   "qwen2.5vl",
					Stream:  false,
					Format:  "json",
					Options: map[string]any{"temperature": 0},
					Messages: []ollamaMessage{
						{Role: "system", Content: "system prompt"},
						{Role: "user", Content: "extract the bill", Images: []string{
							base64.StdEncoding.EncodeToString([]byte("first")),
							base64.StdEncoding.EncodeToString([]byte("second")),
						}},
					},
				}),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"message":           map[string]any{"role": "assistant", "content": `{"vendor": "Acme"}`},
					"done":              true,
					"prompt_eval_count": 1200,
					"eval_count":        80,
				}),
			))
		})

		It("should return the text", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Text).To(Equal(`{"vendor": "Acme"}`))
		})

		It("should report token usage", func() {
			Expect(resp.Usage).To(Equal(TokenUsage{InputTokens: 1200, OutputTokens: 80, TotalTokens: 1280}))
		})
	})

	When("the model is rate limited", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusTooManyRequests, "slow down"))
		})

		It("should return a rate_limited error", func() {
			var merr *ModelInvocationError
			Expect(errors.As(err, &merr)).To(BeTrue())
			Expect(merr.Kind).To(Equal(ModelRateLimited))
			Expect(merr.StatusCode).To(Equal(http.StatusTooManyRequests))
		})
	})

	When("the server fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("should return a transport error", func() {
			var merr *ModelInvocationError
			Expect(errors.As(err, &merr)).To(BeTrue())
			Expect(merr.Kind).To(Equal(ModelTransport))
			Expect(merr.Error()).To(ContainSubstring("model not loaded"))
		})
	})

	When("the model returns nothing", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"message": map[string]any{"role": "assistant", "content": "  "},
				"done":    true,
			}))
		})

		It("should return an empty_response error", func() {
			var merr *ModelInvocationError
			Expect(errors.As(err, &merr)).To(BeTrue())
			Expect(merr.Kind).To(Equal(ModelEmptyResponse))
		})
	})
})
