package bill

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("parseResponse", func() {
	var (
		text string
		data map[string]any
		err  error
	)

	JustBeforeEach(func() {
		data, err = parseResponse(text)
	})

	When("the response is plain JSON", func() {
		BeforeEach(func() {
			text = `{"vendor": "Acme", "grand_total": 12.5}`
		})

		It("should decode the object", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(HaveKeyWithValue("vendor", "Acme"))
		})

		It("should keep numbers as written", func() {
			Expect(data["grand_total"]).To(BeEquivalentTo("12.5"))
		})
	})

	When("the JSON is wrapped in a markdown code block", func() {
		BeforeEach(func() {
			text = "```json\n{\"vendor\": \"Acme\"}\n```"
		})

		It("should strip the fences", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(HaveKeyWithValue("vendor", "Acme"))
		})
	})

	When("the JSON is surrounded by prose", func() {
		BeforeEach(func() {
			text = "Here is the extracted bill:\n{\"vendor\": \"Acme\", \"line_items\": []}\nLet me know if you need more."
		})

		It("should extract the object", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(HaveKey("line_items"))
		})
	})

	When("the JSON has trailing commas", func() {
		BeforeEach(func() {
			text = `{"vendor": "Acme", "line_items": [{"description": "A", "total": 1},],}`
		})

		It("should repair and decode it", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(data["line_items"]).To(HaveLen(1))
		})
	})

	When("the response is empty", func() {
		BeforeEach(func() {
			text = "   \n"
		})

		It("should return a parse error", func() {
			var perr *ParseError
			Expect(errors.As(err, &perr)).To(BeTrue())
			Expect(perr.Reason).To(Equal("empty response"))
		})
	})

	When("the response contains no JSON object", func() {
		BeforeEach(func() {
			text = "I could not read this document."
		})

		It("should return a parse error", func() {
			var perr *ParseError
			Expect(errors.As(err, &perr)).To(BeTrue())
		})
	})

	When("the JSON is malformed", func() {
		BeforeEach(func() {
			text = `{"vendor": Acme}`
		})

		It("should return a parse error wrapping the decoder error", func() {
			var perr *ParseError
			Expect(errors.As(err, &perr)).To(BeTrue())
			Expect(perr.Unwrap()).To(HaveOccurred())
		})
	})
})
