package inspection

import (
	"io/fs"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			filename  string
			savedPath string
			err       error
		)

		BeforeEach(func() {
			filename = "inspections/abc/front.jpg"
		})

		JustBeforeEach(func() {
			savedPath, err = storage.Save(filename, []byte("test file content"))
		})

		It("creates parent directories", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(savedPath).To(Equal(filename))
			Expect(filepath.Join(tmpDir, "inspections", "abc", "front.jpg")).To(BeAnExistingFile())
		})

		When("the name tries to escape the base directory", func() {
			BeforeEach(func() {
				filename = "../../escape.jpg"
			})

			It("keeps the file inside the base directory", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(filepath.Join(tmpDir, "escape.jpg")).To(BeAnExistingFile())
			})
		})
	})

	Describe("Get", func() {
		It("returns saved data", func() {
			_, err := storage.Save("references/front", []byte("ref"))
			Expect(err).NotTo(HaveOccurred())

			data, err := storage.Get("references/front")
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("ref")))
		})

		It("reports missing files as not existing", func() {
			_, err := storage.Get("references/ideal")
			Expect(err).To(MatchError(fs.ErrNotExist))
		})
	})

	Describe("Delete", func() {
		It("removes the file", func() {
			_, err := storage.Save("a.jpg", []byte("x"))
			Expect(err).NotTo(HaveOccurred())

			Expect(storage.Delete("a.jpg")).To(Succeed())
			Expect(filepath.Join(tmpDir, "a.jpg")).NotTo(BeAnExistingFile())
		})

		It("fails for missing files", func() {
			Expect(storage.Delete("missing.jpg")).To(MatchError(fs.ErrNotExist))
		})
	})
})
