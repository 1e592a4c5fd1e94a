package fleet

import "sort"

// Issue is a candidate work item with the files it is expected to touch.
type Issue struct {
	Number      int      `json:"number"`
	TargetFiles []string `json:"targetFiles"`
}

// Cluster groups issues whose target files overlap, directly or
// transitively.
type Cluster struct {
	Issues      []int    `json:"issues"`
	SharedFiles []string `json:"sharedFiles"`
}

// OverlapReport partitions issues into safely-parallel work and clusters
// that must be serialized.
type OverlapReport struct {
	Clean    []int            `json:"clean"`
	Overlaps map[string][]int `json:"overlaps"`
	Clusters []Cluster        `json:"clusters"`
}

// Overlap computes file-sharing clusters over the issues via union-find.
// Pure: no I/O, deterministic output ordering.
func Overlap(issues []Issue) OverlapReport {
	byFile := map[string][]int{}
	for _, iss := range issues {
		seen := map[string]bool{}
		for _, f := range iss.TargetFiles {
			if seen[f] {
				continue
			}
			seen[f] = true
			byFile[f] = append(byFile[f], iss.Number)
		}
	}

	report := OverlapReport{Overlaps: map[string][]int{}}
	for f, nums := range byFile {
		if len(nums) >= 2 {
			sorted := append([]int(nil), nums...)
			sort.Ints(sorted)
			report.Overlaps[f] = sorted
		}
	}

	parent := map[int]int{}
	var find func(int) int
	find = func(n int) int {
		if parent[n] != n {
			parent[n] = find(parent[n])
		}
		return parent[n]
	}
	union := func(a, b int) {
		parent[find(a)] = find(b)
	}
	for _, iss := range issues {
		parent[iss.Number] = iss.Number
	}
	for _, nums := range report.Overlaps {
		for _, n := range nums[1:] {
			union(nums[0], n)
		}
	}

	// Components of size >= 2 become clusters; the rest are clean.
	members := map[int][]int{}
	for _, iss := range issues {
		root := find(iss.Number)
		members[root] = append(members[root], iss.Number)
	}
	for _, group := range members {
		if len(group) < 2 {
			report.Clean = append(report.Clean, group[0])
			continue
		}
		sort.Ints(group)
		cluster := Cluster{Issues: group}
		inCluster := map[int]bool{}
		for _, n := range group {
			inCluster[n] = true
		}
		for f, nums := range report.Overlaps {
			if inCluster[nums[0]] {
				cluster.SharedFiles = append(cluster.SharedFiles, f)
			}
		}
		sort.Strings(cluster.SharedFiles)
		report.Clusters = append(report.Clusters, cluster)
	}
	sort.Ints(report.Clean)
	sort.Slice(report.Clusters, func(i, j int) bool {
		return report.Clusters[i].Issues[0] < report.Clusters[j].Issues[0]
	})
	return report
}
