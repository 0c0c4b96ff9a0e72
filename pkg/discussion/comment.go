// Package discussion holds threaded comments and quality-assessment
// submissions attached to workspace entities.
//
// Comments are stored as a flat table keyed by id with a ParentID
// back-reference; reply trees are derived at read time, so there is no
// cyclic object graph to maintain.
package discussion

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/argumap/collab.go/pkg/constants"
)

// ReactionKind is one of the supported comment reactions.
type ReactionKind string

const (
	ReactionLike     ReactionKind = "like"
	ReactionDislike  ReactionKind = "dislike"
	ReactionAgree    ReactionKind = "agree"
	ReactionDisagree ReactionKind = "disagree"
)

// Author identifies who wrote a comment.
type Author struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Reaction is a single user's reaction to a comment.
// At most one reaction per (user, comment) is kept.
type Reaction struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	Kind      ReactionKind `json:"kind"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Comment is one discussion entry. Text is immutable after creation;
// an edit would be a new comment.
type Comment struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Author     Author     `json:"author"`
	TargetID   string     `json:"targetId"`
	TargetType string     `json:"targetType"`
	ParentID   string     `json:"parentId,omitempty"`
	Resolved   bool       `json:"resolved"`
	Reactions  []Reaction `json:"reactions,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Store keeps comments and validation submissions for the workspace.
type Store struct {
	mu       sync.RWMutex
	comments map[string]*Comment
	order    []string // insertion order of comment ids

	submissions map[string][]ValidationSubmission // keyed by target entity id
	results     map[string]ValidationResult

	clock func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		comments:    make(map[string]*Comment),
		submissions: make(map[string][]ValidationSubmission),
		results:     make(map[string]ValidationResult),
		clock:       time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (s *Store) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// AddComment inserts a comment, assigning id and timestamp when missing.
// A non-empty ParentID must reference an existing comment.
func (s *Store) AddComment(c Comment) (Comment, error) {
	if c.Text == "" {
		return Comment{}, constants.ErrEmptyComment
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ParentID != "" {
		if _, ok := s.comments[c.ParentID]; !ok {
			return Comment{}, constants.ErrParentNotFound
		}
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.clock()
	}

	stored := c
	if _, exists := s.comments[c.ID]; !exists {
		s.order = append(s.order, c.ID)
	}
	s.comments[c.ID] = &stored

	return c, nil
}

// ApplyRemote upserts a comment record received from the server as-is.
// Unlike AddComment it does not validate the parent: remote delivery
// order is not guaranteed and the parent may arrive later.
func (s *Store) ApplyRemote(c Comment) Comment {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	stored := c
	if _, exists := s.comments[c.ID]; !exists {
		s.order = append(s.order, c.ID)
	}
	s.comments[c.ID] = &stored

	return c
}

// SetResolved flips a comment's resolved flag.
func (s *Store) SetResolved(id string, resolved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[id]
	if !ok {
		return constants.ErrCommentNotFound
	}
	c.Resolved = resolved
	return nil
}

// React applies toggle semantics: reacting again with the same kind removes
// the reaction, a different kind replaces it. At most one reaction per user
// per comment holds afterwards.
func (s *Store) React(commentID, userID string, kind ReactionKind) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[commentID]
	if !ok {
		return Comment{}, constants.ErrCommentNotFound
	}

	for i, r := range c.Reactions {
		if r.UserID != userID {
			continue
		}
		if r.Kind == kind {
			c.Reactions = append(c.Reactions[:i], c.Reactions[i+1:]...)
		} else {
			c.Reactions[i].Kind = kind
			c.Reactions[i].CreatedAt = s.clock()
		}
		return *c, nil
	}

	c.Reactions = append(c.Reactions, Reaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		CreatedAt: s.clock(),
	})
	return *c, nil
}

// Clear drops all comments, reactions and validation data.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments = make(map[string]*Comment)
	s.order = nil
	s.submissions = make(map[string][]ValidationSubmission)
	s.results = make(map[string]ValidationResult)
}

// Comment returns a copy of one comment.
func (s *Store) Comment(id string) (Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.comments[id]
	if !ok {
		return Comment{}, false
	}
	return *c, true
}

// ForTarget returns the top-level comments attached to an entity, in
// insertion order.
func (s *Store) ForTarget(targetID string) []Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Comment
	for _, id := range s.order {
		c := s.comments[id]
		if c.TargetID == targetID && c.ParentID == "" {
			out = append(out, *c)
		}
	}
	return out
}

// Replies returns the direct replies of a comment, oldest first.
func (s *Store) Replies(commentID string) []Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Comment
	for _, id := range s.order {
		c := s.comments[id]
		if c.ParentID == commentID {
			out = append(out, *c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
