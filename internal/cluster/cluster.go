// Package cluster groups items into near-duplicate clusters by greedy,
// seed-based threshold clustering over a precomputed similarity matrix.
package cluster

import (
	"fmt"
	"sort"
	"strconv"
)

// DefaultThreshold is the similarity a candidate must strictly exceed to join a seed's cluster.
const DefaultThreshold = 0.9

// Item is a caller-supplied identifier paired with its text.
type Item struct {
	ID   string
	Text string
}

// Member is one entry of a cluster as it appears on the wire.
type Member struct {
	ID       string `json:"id"`
	Question string `json:"question"`
}

// Result maps a seed's index (decimal string) to its members, seed first.
type Result map[string][]Member

// OrderItems returns the items of questions sorted by ID. The returned order is
// the index order used to align texts, embeddings and the similarity matrix.
func OrderItems(questions map[string]string) []Item {
	items := make([]Item, 0, len(questions))
	for id, text := range questions {
		items = append(items, Item{ID: id, Text: text})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

// Texts returns the texts of items in index order.
func Texts(items []Item) []string {
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Text
	}
	return texts
}

// Threshold partitions items into clusters. Items are visited in index order;
// each unvisited item seeds a new cluster and claims every later unvisited item
// whose similarity to the seed is strictly greater than threshold.
// Membership depends only on similarity to the seed, so clusters are not transitive.
// It panics if matrix is not len(items)×len(items).
func Threshold(items []Item, matrix [][]float64, threshold float64) Result {
	n := len(items)
	if len(matrix) != n {
		panic(fmt.Sprintf("cluster: matrix has %d rows for %d items", len(matrix), n))
	}
	result := make(Result)
	visited := make([]bool, n)
	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		row := matrix[i]
		if len(row) != n {
			panic(fmt.Sprintf("cluster: matrix row %d has %d columns for %d items", i, len(row), n))
		}
		visited[i] = true
		members := []Member{{ID: items[i].ID, Question: items[i].Text}}
		for j := i + 1; j < n; j++ {
			if !visited[j] && row[j] > threshold {
				members = append(members, Member{ID: items[j].ID, Question: items[j].Text})
				visited[j] = true
			}
		}
		result[strconv.Itoa(i)] = members
	}
	return result
}

// Seeds returns the seed indices of r in increasing order.
func (r Result) Seeds() []int {
	seeds := make([]int, 0, len(r))
	for k := range r {
		idx, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		seeds = append(seeds, idx)
	}
	sort.Ints(seeds)
	return seeds
}

// Size returns the total number of members across all clusters.
func (r Result) Size() int {
	n := 0
	for _, members := range r {
		n += len(members)
	}
	return n
}
