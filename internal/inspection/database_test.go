package inspection

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/inspectdiff/internal/imagediff"
	"github.com/zombor/inspectdiff/internal/reportdiff"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("inspections", func() {
		It("round-trips a saved inspection", func() {
			created := time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)
			Expect(db.SaveInspection(&Inspection{ID: "insp-1", UserID: "user-1", CreatedAt: created})).To(Succeed())

			inspection, err := db.GetInspection("insp-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(inspection.UserID).To(Equal("user-1"))
			Expect(inspection.CreatedAt.Equal(created)).To(BeTrue())
		})

		It("returns a not found error for unknown ids", func() {
			_, err := db.GetInspection("missing")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("images", func() {
		BeforeEach(func() {
			Expect(db.SaveImage(&ImageRecord{InspectionID: "a", ImageType: "front", Status: StatusUnavailable})).To(Succeed())
			Expect(db.SaveImage(&ImageRecord{
				InspectionID: "a",
				ImageType:    "back",
				Status:       StatusCompared,
				DiffPath:     "inspections/a/back_diff.jpg",
				Comparison:   &ComparisonSummary{Score: 0.99, DiffPercentage: 1, Label: imagediff.LabelGood},
			})).To(Succeed())
			Expect(db.SaveImage(&ImageRecord{InspectionID: "ab", ImageType: "front"})).To(Succeed())
		})

		It("gets one image by inspection and type", func() {
			record, err := db.GetImage("a", "back")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Comparison.Label).To(Equal(imagediff.LabelGood))
			Expect(record.DiffPath).To(Equal("inspections/a/back_diff.jpg"))
		})

		It("lists only the inspection's images, ordered by type", func() {
			records, err := db.ListImages("a")
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
			Expect(records[0].ImageType).To(Equal("back"))
			Expect(records[1].ImageType).To(Equal("front"))
		})

		It("replaces an image of the same type", func() {
			Expect(db.SaveImage(&ImageRecord{InspectionID: "a", ImageType: "front", Status: StatusFailed})).To(Succeed())
			record, err := db.GetImage("a", "front")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Status).To(Equal(StatusFailed))
		})

		It("returns an empty list for an inspection without images", func() {
			records, err := db.ListImages("zzz")
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())
		})

		It("returns a not found error for a missing image", func() {
			_, err := db.GetImage("a", "roof")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("history", func() {
		key := ReportKey{UserID: "user-1", SubjectID: "Model S"}

		It("reports missing history", func() {
			findings, found, err := db.GetFindings(key)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeFalse())
			Expect(findings).To(BeNil())
		})

		It("overwrites stored findings", func() {
			Expect(db.PutFindings(key, []reportdiff.Finding{{Severity: "none"}})).To(Succeed())
			Expect(db.PutFindings(key, []reportdiff.Finding{{PartIndex: 0, Severity: "major", Description: "dent"}})).To(Succeed())

			findings, found, err := db.GetFindings(key)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			Expect(findings).To(Equal([]reportdiff.Finding{{Severity: "major", Description: "dent"}}))
		})

		It("distinguishes stored empty findings from missing history", func() {
			Expect(db.PutFindings(key, nil)).To(Succeed())
			findings, found, err := db.GetFindings(key)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			Expect(findings).To(BeEmpty())
		})

		It("survives reopening the database", func() {
			Expect(db.PutFindings(key, []reportdiff.Finding{{Severity: "minor"}})).To(Succeed())
			Expect(db.Close()).To(Succeed())

			var err error
			db, err = NewBoltDB(dbPath)
			Expect(err).NotTo(HaveOccurred())

			findings, found, err := db.GetFindings(key)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			Expect(findings).To(HaveLen(1))
		})
	})
})
