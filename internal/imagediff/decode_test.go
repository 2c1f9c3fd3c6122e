package imagediff

import (
	"bytes"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/jpeg"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Decode", func() {
	var (
		data        []byte
		contentType string
		img         image.Image
		err         error
	)

	BeforeEach(func() {
		contentType = ""
	})

	JustBeforeEach(func() {
		img, err = Decode(data, contentType)
	})

	When("decoding a PNG", func() {
		BeforeEach(func() {
			data = encodePNG(solid(12, 7, gray))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should keep the dimensions", func() {
			Expect(img.Bounds().Dx()).To(Equal(12))
			Expect(img.Bounds().Dy()).To(Equal(7))
		})
	})

	When("decoding a PNG with a transparent alpha channel", func() {
		BeforeEach(func() {
			data = encodePNG(translucent(6, 4, color.NRGBA{R: 255, G: 255, B: 255, A: 0}))
		})

		It("should decode the image", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(img.Bounds().Dx()).To(Equal(6))
		})

		It("should flatten to the straight colour", func() {
			flat := toRGBA(img)
			Expect(flat.RGBAAt(0, 0)).To(Equal(white))
			Expect(flat.RGBAAt(5, 3)).To(Equal(white))
		})
	})

	When("decoding a JPEG with a content type", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(jpeg.Encode(&buf, solid(16, 16, white), nil)).To(Succeed())
			data = buf.Bytes()
			contentType = " IMAGE/JPEG "
		})

		It("should decode the image", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(img.Bounds().Dx()).To(Equal(16))
		})
	})

	When("decoding a GIF", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			p := image.NewPaletted(image.Rect(0, 0, 5, 5), palette.Plan9)
			Expect(gif.Encode(&buf, p, nil)).To(Succeed())
			data = buf.Bytes()
		})

		It("should decode the image", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(img.Bounds().Dx()).To(Equal(5))
		})
	})

	When("the data is empty", func() {
		BeforeEach(func() {
			data = nil
		})

		It("returns an invalid input error", func() {
			Expect(err).To(MatchError(ErrInvalidInput))
		})
	})

	When("the data is not an image", func() {
		BeforeEach(func() {
			data = []byte("definitely not an image")
		})

		It("returns an invalid input error", func() {
			Expect(err).To(MatchError(ErrInvalidInput))
			Expect(err.Error()).To(ContainSubstring("unsupported image format"))
		})
	})

	When("a PNG is truncated", func() {
		BeforeEach(func() {
			full := encodePNG(solid(30, 30, gray))
			data = full[:len(full)/2]
		})

		It("returns an invalid input error", func() {
			Expect(err).To(MatchError(ErrInvalidInput))
		})
	})

	When("HEIC data is corrupt", func() {
		BeforeEach(func() {
			data = append([]byte{0, 0, 0, 24}, []byte("ftypheic garbage")...)
		})

		It("returns an invalid input error", func() {
			Expect(err).To(MatchError(ErrInvalidInput))
			Expect(err.Error()).To(ContainSubstring("HEIC"))
		})
	})
})

var _ = Describe("format detection", func() {
	It("recognises HEIC brands", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypheic"))).To(BeTrue())
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypmif1"))).To(BeTrue())
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypisom"))).To(BeFalse())
		Expect(isHEICFormat([]byte("short"))).To(BeFalse())
	})

	It("recognises HEIC MIME types", func() {
		Expect(isHEICMimeType("image/heic")).To(BeTrue())
		Expect(isHEICMimeType("image/heif")).To(BeTrue())
		Expect(isHEICMimeType("image/png")).To(BeFalse())
	})

	It("recognises PDFs", func() {
		Expect(isPDFFormat([]byte("%PDF-1.7\n"))).To(BeTrue())
		Expect(isPDFFormat([]byte("PDF"))).To(BeFalse())
	})
})
