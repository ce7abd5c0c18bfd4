// Package e2e provides end-to-end tests that drive the HTTP API over a corpus of
// paraphrased questions.
package e2e

import (
	"fmt"
	"sort"
)

// E2EQuestion is one question of the corpus. Questions of the same Group are
// paraphrases and must end up in the same cluster.
type E2EQuestion struct {
	ID    string
	Text  string
	Group int
}

// Corpus holds the questions and their expected grouping.
type Corpus struct {
	Questions   []E2EQuestion
	TotalGroups int
}

var topics = [][]string{
	{"How do I reset my password?", "I forgot my password, how can I change it?", "What are the steps to recover my password?"},
	{"What are your opening hours?", "When are you open?", "What time do you close today?"},
	{"How much does shipping cost?", "What is the delivery fee?"},
	{"Can I return an item?", "What is your refund policy?", "How do returns work?", "Can I get my money back?"},
	{"Do you ship internationally?"},
	{"Where is my order?", "How can I track my package?"},
	{"Is there a student discount?", "Do students get a reduced price?"},
	{"How do I delete my account?"},
}

// BuildCorpus returns the question corpus. IDs are assigned round-robin across
// topics so that paraphrases are never adjacent in id order.
func BuildCorpus() *Corpus {
	var qs []E2EQuestion
	n := 0
	for round := 0; ; round++ {
		added := false
		for g, texts := range topics {
			if round < len(texts) {
				qs = append(qs, E2EQuestion{ID: fmt.Sprintf("q%03d", n), Text: texts[round], Group: g})
				n++
				added = true
			}
		}
		if !added {
			break
		}
	}
	return &Corpus{Questions: qs, TotalGroups: len(topics)}
}

// Request returns the corpus as a questionsWithIds mapping.
func (c *Corpus) Request() map[string]string {
	m := make(map[string]string, len(c.Questions))
	for _, q := range c.Questions {
		m[q.ID] = q.Text
	}
	return m
}

// ExpectedGroups returns the sorted member ids of each group, keyed by the
// smallest id in the group.
func (c *Corpus) ExpectedGroups() map[string][]string {
	byGroup := make(map[int][]string)
	for _, q := range c.Questions {
		byGroup[q.Group] = append(byGroup[q.Group], q.ID)
	}
	out := make(map[string][]string, len(byGroup))
	for _, ids := range byGroup {
		sort.Strings(ids)
		out[ids[0]] = ids
	}
	return out
}
