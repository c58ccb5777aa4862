package names_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/logsim/names"
)

var _ = Describe("Names", func() {
	var n *names.Names

	BeforeEach(func() {
		n = names.New()
	})

	It("round-trips an arbitrary string through lookup and get_name_string", func() {
		ids := n.Lookup([]string{"Switch1"})
		s, ok := n.GetNameString(ids[0])
		Expect(ok).To(BeTrue())
		Expect(s).To(Equal("Switch1"))
	})

	It("is idempotent on repeated lookups of the same string", func() {
		first := n.Lookup([]string{"Gate1"})
		second := n.Lookup([]string{"Gate1"})
		Expect(second).To(Equal(first))
	})

	It("returns false from query for strings never looked up", func() {
		_, ok := n.Query("NeverSeen")
		Expect(ok).To(BeFalse())
	})

	It("finds a string once it has been looked up", func() {
		ids := n.Lookup([]string{"Gate2"})
		id, ok := n.Query("Gate2")
		Expect(ok).To(BeTrue())
		Expect(id).To(Equal(ids[0]))
	})

	It("pre-interns every reserved word", func() {
		for _, kw := range names.ReservedWords {
			_, ok := n.Query(kw)
			Expect(ok).To(BeTrue(), "expected %q to be pre-interned", kw)
		}
	})

	It("returns false for an id beyond the current table size", func() {
		_, ok := n.GetNameString(names.NameId(100000))
		Expect(ok).To(BeFalse())
	})

	It("allocates disjoint error code ranges", func() {
		a, err := n.UniqueErrorCodes(5)
		Expect(err).NotTo(HaveOccurred())
		b, err := n.UniqueErrorCodes(3)
		Expect(err).NotTo(HaveOccurred())

		seen := make(map[int]bool)
		for _, code := range append(append([]int{}, a...), b...) {
			Expect(seen[code]).To(BeFalse(), "code %d allocated twice", code)
			seen[code] = true
		}
		Expect(a).To(HaveLen(5))
		Expect(b).To(HaveLen(3))
	})

	It("rejects a negative error code count", func() {
		_, err := n.UniqueErrorCodes(-1)
		Expect(err).To(HaveOccurred())
	})

	It("preserves insertion order across mixed new and existing strings", func() {
		ids := n.Lookup([]string{"First", "Second", "First", "Third"})
		Expect(ids[0]).To(Equal(ids[2]))
		Expect(ids[1]).To(Equal(ids[0] + 1))
		Expect(ids[3]).To(Equal(ids[1] + 1))
	})
})
