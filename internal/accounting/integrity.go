package accounting

import "sort"

// MissingSequences returns the gaps in seqs between 1 and its maximum.
func MissingSequences(seqs []int64) []int64 {
	if len(seqs) == 0 {
		return nil
	}
	sorted := append([]int64(nil), seqs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	var missing []int64
	expected := int64(1)
	for _, seq := range sorted {
		for expected < seq {
			missing = append(missing, expected)
			expected++
		}
		if seq == expected {
			expected++
		}
	}
	return missing
}
