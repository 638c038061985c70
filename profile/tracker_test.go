package profile_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2sim/profile"
)

var _ = Describe("FlowTracker", func() {
	var table *profile.PCTable
	var tracker *profile.FlowTracker

	newTracker := func() *profile.FlowTracker {
		table = profile.NewPCTable()
		return profile.NewFlowTracker(table, profile.DefaultConfig())
	}

	Context("simple call/return", func() {
		BeforeEach(func() {
			tracker = newTracker()
			table.Load(0x1000, "main", "main.s", 1, "addi")
			table.Load(0x1004, "main", "main.s", 2, "jal")
			table.Load(0x1008, "main", "main.s", 3, "addi")
			table.Load(0x100C, "main", "main.s", 4, "ret")
			table.Load(0x2000, "f", "f.s", 1, "addi")
			table.Load(0x2004, "f", "f.s", 2, "ret")

			tracker.Record(0x1000, profile.EventIr, 1, -1, false)
			tracker.Record(0x1004, profile.EventIr, 1, 1, true)
			tracker.Record(0x2000, profile.EventIr, 1, -1, false)
			tracker.Record(0x2004, profile.EventIr, 1, -1, true)
			tracker.Record(0x1008, profile.EventIr, 1, -1, false)
			tracker.Record(0x100C, profile.EventIr, 1, -1, true)
		})

		It("records exactly one call from the call site to the callee", func() {
			edges := tracker.Edges().CallEdges(0x1004)
			Expect(edges).To(HaveLen(1))
			Expect(edges[0].To).To(Equal(uint64(0x2000)))
			Expect(edges[0].Edge.Count).To(Equal(uint64(1)))
		})

		It("credits the call edge with the callee's inclusive cost", func() {
			edges := tracker.Edges().CallEdges(0x1004)
			Expect(edges[0].Edge.Incl[profile.EventIr]).To(Equal(uint64(2)))
		})

		It("accumulates total instruction count across the whole run", func() {
			Expect(tracker.Global()[profile.EventIr]).To(Equal(uint64(6)))
		})

		It("leaves the call stack empty once the run completes", func() {
			Expect(tracker.Stack().Depth()).To(Equal(0))
		})
	})

	Context("tail call chain", func() {
		BeforeEach(func() {
			tracker = newTracker()
			table.Load(0x1000, "main", "main.s", 1, "addi")
			table.Load(0x1004, "main", "main.s", 2, "jal")
			table.Load(0x1008, "main", "main.s", 3, "addi")
			table.Load(0x100C, "main", "main.s", 4, "ret")
			table.Load(0x2000, "f", "f.s", 1, "addi")
			table.Load(0x2004, "f", "f.s", 2, "jr")
			table.Load(0x3000, "g", "g.s", 1, "addi")
			table.Load(0x3004, "g", "g.s", 2, "ret")

			tracker.Record(0x1000, profile.EventIr, 1, -1, false)
			tracker.Record(0x1004, profile.EventIr, 1, 1, true)
			tracker.Record(0x2000, profile.EventIr, 1, -1, false)
			tracker.Record(0x2004, profile.EventIr, 1, 0, true)
			tracker.Record(0x3000, profile.EventIr, 1, -1, false)
			tracker.Record(0x3004, profile.EventIr, 1, -1, true)
			tracker.Record(0x1008, profile.EventIr, 1, -1, false)
			tracker.Record(0x100C, profile.EventIr, 1, -1, true)
		})

		It("records the tail-call edge with a count of one", func() {
			edges := tracker.Edges().CallEdges(0x2004)
			Expect(edges).To(HaveLen(1))
			Expect(edges[0].To).To(Equal(uint64(0x3000)))
			Expect(edges[0].Edge.Count).To(Equal(uint64(1)))
		})

		It("chains the inclusive cost of the whole tail sequence back to the original caller", func() {
			edges := tracker.Edges().CallEdges(0x1004)
			Expect(edges).To(HaveLen(1))
			Expect(edges[0].To).To(Equal(uint64(0x2000)))
			Expect(edges[0].Edge.Incl[profile.EventIr]).To(BeNumerically(">", 0))
			Expect(edges[0].Edge.Incl[profile.EventIr]).To(BeNumerically("<=", tracker.Global()[profile.EventIr]))
		})

		It("leaves the call stack empty once the chain unwinds", func() {
			Expect(tracker.Stack().Depth()).To(Equal(0))
		})
	})

	Context("taken/not-taken branch", func() {
		BeforeEach(func() {
			tracker = newTracker()
			table.Load(0x1000, "main", "main.s", 1, "addi")
			table.Load(0x1010, "main", "main.s", 2, "bne")
			table.Load(0x1014, "main", "main.s", 3, "addi")

			for i := 0; i < 3; i++ {
				tracker.Record(0x1000, profile.EventIr, 1, -1, false)
				tracker.Record(0x1010, profile.EventIr, 1, -1, true)
			}
			tracker.Record(0x1000, profile.EventIr, 1, -1, false)
			tracker.Record(0x1010, profile.EventIr, 1, -1, true)
			tracker.Record(0x1014, profile.EventIr, 1, -1, false)
		})

		It("records three taken iterations and one fallthrough exit", func() {
			branch, ok := tracker.Edges().Branch(0x1010)
			Expect(ok).To(BeTrue())
			Expect(branch.TotalExecuted).To(Equal(uint64(4)))
			Expect(branch.TakenTarget).To(Equal(uint64(0x1000)))
			Expect(branch.TakenCount).To(Equal(uint64(3)))
			Expect(branch.FallthroughTarget).To(Equal(uint64(0x1014)))
			Expect(branch.FallthroughCount).To(Equal(uint64(1)))
		})

		It("satisfies total_executed == taken_count + fallthrough_count", func() {
			branch, _ := tracker.Edges().Branch(0x1010)
			Expect(branch.TotalExecuted).To(Equal(branch.TakenCount + branch.FallthroughCount))
		})

		It("bumps the per-PC conditional-branch counter once per branch instance", func() {
			rec, _ := table.Peek(0x1010)
			Expect(rec.Events[profile.EventBc]).To(Equal(uint64(4)))
		})
	})

	Context("helper elision", func() {
		BeforeEach(func() {
			tracker = newTracker()
			table.Load(0x1000, "main", "main.s", 1, "addi")
			table.Load(0x1004, "main", "main.s", 2, "jal")
			table.Load(0x5000, "__riscv_save_4", "helper.s", 1, "j")
			table.Load(0x2000, "f", "f.s", 1, "addi")

			tracker.Record(0x1000, profile.EventIr, 1, -1, false)
			tracker.Record(0x1004, profile.EventIr, 1, 1, true)
			tracker.Record(0x5000, profile.EventIr, 1, 1, true)
			tracker.Record(0x2000, profile.EventIr, 1, -1, false)
		})

		It("attributes the call through the helper to the real caller", func() {
			edges := tracker.Edges().CallEdges(0x1004)
			var sawCallee bool
			for _, e := range edges {
				if e.To == 0x2000 {
					sawCallee = true
				}
			}
			Expect(sawCallee).To(BeTrue())
		})

		It("never records an edge originating inside the helper", func() {
			Expect(tracker.Edges().CallEdges(0x5000)).To(BeEmpty())
		})
	})

	Context("fall-through", func() {
		BeforeEach(func() {
			tracker = newTracker()
			table.Load(0x3000, "a", "a.s", 1, "addi")
			table.Load(0x3004, "b", "b.s", 1, "addi")

			tracker.Record(0x3000, profile.EventIr, 1, -1, false)
			tracker.Record(0x3004, profile.EventIr, 1, -1, false)
		})

		It("records a fall-through call edge from a into b", func() {
			edges := tracker.Edges().CallEdges(0x3000)
			Expect(edges).To(HaveLen(1))
			Expect(edges[0].To).To(Equal(uint64(0x3004)))
			Expect(edges[0].Edge.IsFallThrough).To(BeTrue())
		})

		It("does not record a conditional-branch instance at the fall-through site", func() {
			_, ok := tracker.Edges().Branch(0x3000)
			Expect(ok).To(BeFalse())
		})
	})

	Context("unknown pc", func() {
		BeforeEach(func() {
			tracker = newTracker()
		})

		It("synthesises a record instead of failing", func() {
			Expect(func() { tracker.Record(0x9000, profile.EventIr, 1, -1, false) }).NotTo(Panic())

			rec, ok := table.Peek(0x9000)
			Expect(ok).To(BeTrue())
			Expect(rec.Func).To(Equal("unknown"))
			Expect(rec.Events[profile.EventIr]).To(Equal(uint64(1)))
		})
	})

	Context("global accumulator consistency", func() {
		It("always equals the sum of every per-PC counter for each event index", func() {
			tracker = newTracker()
			table.Load(0x1000, "main", "main.s", 1, "addi")
			table.Load(0x1004, "main", "main.s", 2, "jal")
			table.Load(0x2000, "f", "f.s", 1, "addi")
			table.Load(0x2004, "f", "f.s", 2, "ret")

			tracker.Record(0x1000, profile.EventIr, 1, -1, false)
			tracker.Record(0x1004, profile.EventIr, 1, 1, true)
			tracker.Record(0x2000, profile.EventIr, 1, -1, false)
			tracker.Record(0x2004, profile.EventIr, 1, -1, true)
			tracker.Record(0x1008, profile.EventCycle, 3, -1, false)

			for i := 0; i < profile.MaxEvents; i++ {
				Expect(tracker.Global()[i]).To(Equal(profile.Sum(table, i)))
			}
		})
	})
})
