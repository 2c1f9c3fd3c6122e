package inspection

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/inspectdiff/internal/reportdiff"
)

var _ = Describe("ReportKey", func() {
	It("keeps pairs that concatenate alike distinct", func() {
		a := ReportKey{UserID: "a/b", SubjectID: "c"}
		b := ReportKey{UserID: "a", SubjectID: "b/c"}
		Expect(a.String()).NotTo(Equal(b.String()))
	})
})

var _ = Describe("MemoryHistory", func() {
	var (
		history *MemoryHistory
		key     ReportKey
	)

	BeforeEach(func() {
		history = NewMemoryHistory()
		key = ReportKey{UserID: "u", SubjectID: "s"}
	})

	It("reports missing history", func() {
		_, found, err := history.GetFindings(key)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
	})

	It("does not alias the caller's slices", func() {
		findings := []reportdiff.Finding{{Severity: "minor"}}
		Expect(history.PutFindings(key, findings)).To(Succeed())
		findings[0].Severity = "major"

		stored, found, err := history.GetFindings(key)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(stored[0].Severity).To(Equal("minor"))

		stored[0].Severity = "none"
		again, _, _ := history.GetFindings(key)
		Expect(again[0].Severity).To(Equal("minor"))
	})
})

var _ = Describe("keyLocker", func() {
	It("excludes holders of the same key", func() {
		locker := newKeyLocker()
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			holders int
			maxSeen int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := locker.Lock("k")
				mu.Lock()
				holders++
				if holders > maxSeen {
					maxSeen = holders
				}
				mu.Unlock()

				mu.Lock()
				holders--
				mu.Unlock()
				unlock()
			}()
		}
		wg.Wait()
		Expect(maxSeen).To(Equal(1))
		Expect(locker.size()).To(BeZero())
	})

	It("does not block different keys", func() {
		locker := newKeyLocker()
		unlockA := locker.Lock("a")
		done := make(chan struct{})
		go func() {
			locker.Lock("b")()
			close(done)
		}()
		Eventually(done).Should(BeClosed())
		Expect(locker.size()).To(Equal(1))
		unlockA()
		Expect(locker.size()).To(BeZero())
	})
})
