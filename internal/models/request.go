// Package models defines the request and response bodies of the HTTP API.
package models

import "errors"

// ErrQuestionsRequired is the validation error for a missing, null or empty questionsWithIds.
// Its text is returned to clients verbatim.
var ErrQuestionsRequired = errors.New("questionsWithIds is required.")

// ClusterRequest is the body of POST /cluster-questions.
type ClusterRequest struct {
	QuestionsWithIDs map[string]string `json:"questionsWithIds"`
}

// Validate rejects a request without questions. JSON null and an absent
// field both decode to a nil map.
func (r *ClusterRequest) Validate() error {
	if len(r.QuestionsWithIDs) == 0 {
		return ErrQuestionsRequired
	}
	return nil
}
