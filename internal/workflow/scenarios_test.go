package workflow

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"correction-workflow/internal/domain"
)

var _ = Describe("Approval engine", func() {
	var (
		f   *fixture
		ctx context.Context
	)

	BeforeEach(func() {
		f = newFixture()
		ctx = context.Background()
	})

	Context("with two required approvals at stage 1", func() {
		It("waits for the first head of department and advances on the second", func() {
			res, err := f.engine.Apply(ctx, approve("exp-1", "hod-a"))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(domain.OutcomeWaiting))
			Expect(res.Satisfied).To(Equal(1))
			Expect(res.Required).To(Equal(2))
			Expect(f.store.doc("exp-1").State).To(Equal("pending"))

			res, err = f.engine.Apply(ctx, approve("exp-1", "hod-b"))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(domain.OutcomeAdvanced))
			Expect(res.State).To(Equal("checked"))
		})

		It("does not count a repeated approval from the same user", func() {
			_, err := f.engine.Apply(ctx, approve("exp-1", "hod-a"))
			Expect(err).NotTo(HaveOccurred())

			res, err := f.engine.Apply(ctx, approve("exp-1", "hod-a"))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(domain.OutcomeWaiting))
			Expect(res.Satisfied).To(Equal(1))
			Expect(res.Required).To(Equal(2))
			Expect(f.store.historyFor("exp-1")).To(HaveLen(1))
		})
	})

	Context("when the actor holds no matching role", func() {
		It("refuses without writing history", func() {
			_, err := f.engine.Apply(ctx, approve("exp-1", "hod-a"))
			Expect(err).NotTo(HaveOccurred())
			_, err = f.engine.Apply(ctx, approve("exp-1", "hod-b"))
			Expect(err).NotTo(HaveOccurred())
			before := len(f.store.historyFor("exp-1"))

			_, err = f.engine.Apply(ctx, approve("exp-1", "hod-a"))
			Expect(err).To(MatchError(domain.ErrActionNotPermitted))
			Expect(f.store.doc("exp-1").State).To(Equal("checked"))
			Expect(f.store.historyFor("exp-1")).To(HaveLen(before))
		})
	})

	Context("when a stage with a prior approval is rejected", func() {
		BeforeEach(func() {
			for _, actor := range []string{"hod-a", "hod-b", "acc"} {
				_, err := f.engine.Apply(ctx, approve("exp-1", actor))
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("moves to revision at once and keeps the earlier row until resubmission", func() {
			res, err := f.engine.Apply(ctx, reject("exp-1", "fin", "vat missing"))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(domain.OutcomeRejected))
			Expect(res.State).To(Equal("revision"))

			var stage2Approvals int
			for _, h := range f.store.historyFor("exp-1") {
				if h.Stage == 2 && h.ActionType == "approve" {
					stage2Approvals++
				}
			}
			Expect(stage2Approvals).To(Equal(1))

			doc, err := f.engine.Resubmit(ctx, "exp-1", "req")
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.State).To(Equal("pending"))
			Expect(f.store.historyFor("exp-1")).To(BeEmpty())

			res, err = f.engine.Apply(ctx, approve("exp-1", "hod-a"))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(domain.OutcomeWaiting))
			Expect(res.Satisfied).To(Equal(1))
		})
	})

	Context("when a document carries a correction-type tag", func() {
		BeforeEach(func() {
			f.store.addTransition(domain.Transition{Category: "expense", CorrectionType: "amount", FromState: "pending", Action: "approve", RequiredRole: "Finance Manager", NextState: "checked", Stage: 1})
			f.store.addDoc(domain.Document{ID: "exp-7", Category: "expense", CorrectionTypes: []string{"amount"}, State: "pending", Department: "A", RequesterID: "req"})
		})

		It("uses only the tag-specific rules", func() {
			_, err := f.engine.Apply(ctx, approve("exp-7", "hod-a"))
			Expect(err).To(MatchError(domain.ErrActionNotPermitted))

			res, err := f.engine.Apply(ctx, approve("exp-7", "fin"))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(domain.OutcomeAdvanced))
			Expect(res.Required).To(Equal(1))
		})
	})
})
