package scanning

import (
	"bytes"
	"context"
	"errors"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/bill-extractor/internal/fetching"
)

// buildPDF writes a minimal PDF with one blank page per width, each 100
// points tall
func buildPDF(widths ...int) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	kids := make([]string, 0, len(widths))
	for i := range widths {
		kids = append(kids, fmt.Sprintf("%d 0 R", i+3))
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(widths)))
	for _, w := range widths {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d 100] /Resources << >> >>", w))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, o := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", o)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.Black)
	}
	return img
}

func encodePNG(w, h int) []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, testImage(w, h))).To(Succeed())
	return buf.Bytes()
}

// withPNGSize rewrites the IHDR of an encoded PNG to claim w x h pixels
// without adding any pixel data
func withPNGSize(data []byte, w, h uint32) []byte {
	out := append([]byte{}, data...)
	// 8 byte signature, 4 byte length, then "IHDR" and its 13 byte body
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

var _ = Describe("Rasterizer", func() {
	var (
		opts RasterizerOptions
		src  *fetching.Source
		doc  Document
		err  error
	)

	BeforeEach(func() {
		opts = RasterizerOptions{DPI: 72}
	})

	JustBeforeEach(func() {
		doc, err = NewRasterizer(opts).Rasterize(context.Background(), src)
	})

	rasterErr := func() *RasterizationError {
		var rerr *RasterizationError
		Expect(errors.As(err, &rerr)).To(BeTrue())
		return rerr
	}

	When("the source is a three page PDF", func() {
		BeforeEach(func() {
			src = &fetching.Source{Kind: fetching.KindPDF, MIMEType: "application/pdf", Data: buildPDF(100, 200, 300)}
		})

		It("should render every page", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(doc).To(HaveLen(3))
		})

		It("should keep the pages in document order", func() {
			Expect(doc[0].Index).To(Equal(1))
			Expect(doc[1].Index).To(Equal(2))
			Expect(doc[2].Index).To(Equal(3))
			Expect(doc[0].Width).To(BeNumerically("~", 100, 2))
			Expect(doc[1].Width).To(BeNumerically("~", 200, 2))
			Expect(doc[2].Width).To(BeNumerically("~", 300, 2))
		})

		It("should encode the pages as PNG", func() {
			for _, page := range doc {
				Expect(page.MIMEType).To(Equal("image/png"))
				Expect(page.Data).To(HavePrefix("\x89PNG"))
			}
		})

		When("it has more pages than allowed", func() {
			BeforeEach(func() {
				opts.MaxPages = 2
			})

			It("should fail as oversize", func() {
				Expect(rasterErr().Kind).To(Equal(RasterOversize))
				Expect(doc).To(BeNil())
			})
		})

		When("a page is larger than the pixel limit", func() {
			BeforeEach(func() {
				opts.MaxDimension = 250
			})

			It("should fail as oversize naming the page", func() {
				rerr := rasterErr()
				Expect(rerr.Kind).To(Equal(RasterOversize))
				Expect(rerr.Page).To(Equal(3))
			})
		})
	})

	When("the PDF has no pages", func() {
		BeforeEach(func() {
			src = &fetching.Source{Kind: fetching.KindPDF, Data: buildPDF()}
		})

		It("should fail as empty", func() {
			Expect(rasterErr().Kind).To(Equal(RasterEmpty))
		})
	})

	When("the PDF cannot be read", func() {
		BeforeEach(func() {
			src = &fetching.Source{Kind: fetching.KindPDF, Data: []byte("%PDF-1.4\nthis is not really a pdf")}
		})

		It("should fail without rendering", func() {
			Expect(rasterErr().Kind).To(BeElementOf(RasterCorrupt, RasterEmpty))
		})
	})

	When("the source is a PNG", func() {
		var data []byte

		BeforeEach(func() {
			data = encodePNG(40, 30)
			src = &fetching.Source{Kind: fetching.KindImage, MIMEType: "image/png", Data: data}
		})

		It("should pass it through unchanged", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(doc).To(HaveLen(1))
			Expect(doc[0].Data).To(Equal(data))
			Expect(doc[0].MIMEType).To(Equal("image/png"))
			Expect(doc[0].Index).To(Equal(1))
			Expect(doc[0].Width).To(Equal(40))
			Expect(doc[0].Height).To(Equal(30))
		})

		When("it is larger than the pixel limit", func() {
			BeforeEach(func() {
				opts.MaxDimension = 32
			})

			It("should fail as oversize", func() {
				Expect(rasterErr().Kind).To(Equal(RasterOversize))
			})
		})

		When("it is larger than the byte limit", func() {
			BeforeEach(func() {
				opts.MaxPageBytes = 10
			})

			It("should fail as oversize", func() {
				Expect(rasterErr().Kind).To(Equal(RasterOversize))
			})
		})
	})

	When("a small PNG claims a huge canvas", func() {
		BeforeEach(func() {
			data := withPNGSize(encodePNG(2, 2), 60000, 60000)
			src = &fetching.Source{Kind: fetching.KindImage, MIMEType: "image/png", Data: data}
		})

		It("should fail as oversize from the header alone", func() {
			rerr := rasterErr()
			Expect(rerr.Kind).To(Equal(RasterOversize))
			Expect(rerr.Error()).To(ContainSubstring("60000x60000"))
		})
	})

	When("the source is a GIF", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(gif.Encode(&buf, testImage(20, 10), nil)).To(Succeed())
			src = &fetching.Source{Kind: fetching.KindImage, MIMEType: "image/gif", Data: buf.Bytes()}
		})

		It("should convert it to PNG", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(doc[0].MIMEType).To(Equal("image/png"))
			Expect(doc[0].Data).To(HavePrefix("\x89PNG"))
			Expect(doc[0].Width).To(Equal(20))
		})
	})

	When("the image is corrupt", func() {
		BeforeEach(func() {
			data := encodePNG(10, 10)
			src = &fetching.Source{Kind: fetching.KindImage, MIMEType: "image/png", Data: data[:len(data)/2]}
		})

		It("should fail as corrupt", func() {
			Expect(rasterErr().Kind).To(Equal(RasterCorrupt))
		})
	})
})
