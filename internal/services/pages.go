package services

import "sort"

// Small set helpers over page-number slices. All results come back sorted;
// inputs are never mutated.

func pagesUnion(a, b []int) []int {
	seen := make(map[int]struct{}, len(a)+len(b))
	for _, p := range a {
		seen[p] = struct{}{}
	}
	for _, p := range b {
		seen[p] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

func pagesDiff(a, b []int) []int {
	drop := make(map[int]struct{}, len(b))
	for _, p := range b {
		drop[p] = struct{}{}
	}
	out := make([]int, 0, len(a))
	for _, p := range a {
		if _, ok := drop[p]; !ok {
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out
}

func pagesIntersect(a, b []int) []int {
	set := make(map[int]struct{}, len(a))
	for _, p := range a {
		set[p] = struct{}{}
	}
	var out []int
	for _, p := range b {
		if _, ok := set[p]; ok {
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out
}

func pagesContainAll(haystack, needles []int) bool {
	set := make(map[int]struct{}, len(haystack))
	for _, p := range haystack {
		set[p] = struct{}{}
	}
	for _, p := range needles {
		if _, ok := set[p]; !ok {
			return false
		}
	}
	return true
}

func pagesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]int(nil), a...)
	sb := append([]int(nil), b...)
	sort.Ints(sa)
	sort.Ints(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// splitChunks slices pages into consecutive runs of at most maxPages,
// preserving page order.
func splitChunks(pages []int, maxPages int) [][]int {
	if maxPages < 1 || len(pages) == 0 {
		if len(pages) == 0 {
			return nil
		}
		return [][]int{pages}
	}
	var chunks [][]int
	for start := 0; start < len(pages); start += maxPages {
		end := start + maxPages
		if end > len(pages) {
			end = len(pages)
		}
		chunks = append(chunks, pages[start:end])
	}
	return chunks
}
