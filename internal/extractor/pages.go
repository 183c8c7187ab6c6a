package extractor

import "sort"

// PageSampleIndices picks up to maxPages zero-based page indices spread
// evenly over the document, always including the first and last page.
// maxPages <= 0 selects every page.
func PageSampleIndices(totalPages, maxPages int) []int {
	if totalPages <= 0 {
		return nil
	}
	if maxPages <= 0 || totalPages <= maxPages {
		out := make([]int, totalPages)
		for i := range out {
			out[i] = i
		}
		return out
	}
	if maxPages == 1 {
		return []int{0}
	}

	last := totalPages - 1
	seen := make(map[int]bool, maxPages)
	out := make([]int, 0, maxPages)
	for i := 0; i < maxPages; i++ {
		idx := int(float64(i)*float64(last)/float64(maxPages-1) + 0.5)
		if !seen[idx] {
			seen[idx] = true
			out = append(out, idx)
		}
	}
	return out
}

// PageRange is an inclusive range of one-based page numbers
type PageRange struct {
	First, Last int
}

// PageRanges groups one-based page numbers into consecutive ranges so an
// external renderer can be invoked once per range
func PageRanges(pages []int) []PageRange {
	uniq := make([]int, 0, len(pages))
	seen := make(map[int]bool, len(pages))
	for _, p := range pages {
		if p > 0 && !seen[p] {
			seen[p] = true
			uniq = append(uniq, p)
		}
	}
	if len(uniq) == 0 {
		return nil
	}
	sort.Ints(uniq)

	ranges := []PageRange{{First: uniq[0], Last: uniq[0]}}
	for _, p := range uniq[1:] {
		cur := &ranges[len(ranges)-1]
		if p == cur.Last+1 {
			cur.Last = p
			continue
		}
		ranges = append(ranges, PageRange{First: p, Last: p})
	}
	return ranges
}

// OneBased converts zero-based page indices to page numbers
func OneBased(indices []int) []int {
	out := make([]int, len(indices))
	for i, idx := range indices {
		out[i] = idx + 1
	}
	return out
}
