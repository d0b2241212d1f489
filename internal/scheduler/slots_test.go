package scheduler_test

import (
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/service-monitor/internal/scheduler"
)

func groupIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("g%d", i)
	}
	return ids
}

var _ = Describe("SlotTable", func() {
	It("should assign the first slots to the workers", func() {
		table := scheduler.NewSlotTable(groupIDs(5), 2)

		Expect(table.Len()).To(Equal(5))
		Expect(table.Occupied(0)).To(BeTrue())
		Expect(table.Occupied(1)).To(BeTrue())
		Expect(table.Occupied(2)).To(BeFalse())
		Expect(table.OccupiedCount()).To(Equal(2))
	})

	It("should never occupy more slots than groups", func() {
		table := scheduler.NewSlotTable(groupIDs(2), 4)
		Expect(table.OccupiedCount()).To(Equal(2))
	})

	It("should wrap slot lookups around the group list", func() {
		table := scheduler.NewSlotTable(groupIDs(3), 1)

		group, ok := table.Group(4)
		Expect(ok).To(BeTrue())
		Expect(group).To(Equal("g1"))
	})

	It("should resolve nothing on an empty table", func() {
		table := scheduler.NewSlotTable(nil, 3)

		_, ok := table.Group(0)
		Expect(ok).To(BeFalse())
		Expect(table.Rotate(0)).To(Equal(0))
		Expect(table.OccupiedCount()).To(BeZero())
	})

	It("should hand out free slots in cursor order", func() {
		table := scheduler.NewSlotTable(groupIDs(5), 2)

		Expect(table.Rotate(0)).To(Equal(2))
		Expect(table.Occupied(0)).To(BeFalse())
		Expect(table.Rotate(1)).To(Equal(3))
		Expect(table.Rotate(2)).To(Equal(4))
		// the cursor wraps and slot 0 is free again
		Expect(table.Rotate(3)).To(Equal(0))
		Expect(table.OccupiedCount()).To(Equal(2))
	})

	It("should skip slots held by other workers", func() {
		table := scheduler.NewSlotTable(groupIDs(3), 2)

		Expect(table.Rotate(0)).To(Equal(2))
		Expect(table.Rotate(2)).To(Equal(0))
		// the cursor lands on slot 1, which is held
		Expect(table.Rotate(0)).To(Equal(2))
	})

	It("should claim the released slot again when nothing else is free", func() {
		table := scheduler.NewSlotTable(groupIDs(2), 2)

		Expect(table.Rotate(1)).To(Equal(1))
		Expect(table.OccupiedCount()).To(Equal(2))
	})

	It("should keep one slot per worker under concurrent rotation", func() {
		const workers = 4
		table := scheduler.NewSlotTable(groupIDs(9), workers)

		slots := make([]int, workers)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			slots[w] = w
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 500; i++ {
					slots[w] = table.Rotate(slots[w])
				}
			}(w)
		}
		wg.Wait()

		Expect(table.OccupiedCount()).To(Equal(workers))
		seen := make(map[int]bool)
		for _, slot := range slots {
			Expect(seen).NotTo(HaveKey(slot))
			seen[slot] = true
		}
	})
})
