package domain

import "time"

// Comment is one entry in a ticket thread. Internal comments are
// visible to staff only.
type Comment struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	AuthorID   string    `json:"author_id"`
	Content    string    `json:"content"`
	IsInternal bool      `json:"is_internal"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// VisibleComments drops internal comments unless the viewer is staff.
func VisibleComments(comments []Comment, viewer Role) []Comment {
	if viewer.IsStaff() {
		return comments
	}
	visible := make([]Comment, 0, len(comments))
	for _, comment := range comments {
		if comment.IsInternal {
			continue
		}
		visible = append(visible, comment)
	}
	return visible
}
