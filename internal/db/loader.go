package db

import (
	"context"

	"gorm.io/gorm"

	"github.com/murmurhq/murmur/internal/models"
)

// loadPosts assembles full posts from rows, batch-loading likes, comments and poll state.
// Output order follows rows.
func loadPosts(ctx context.Context, tx *gorm.DB, rows []postRow) ([]*models.Post, error) {
	if len(rows) == 0 {
		return []*models.Post{}, nil
	}
	ids := make([]string, len(rows))
	byID := make(map[string]*models.Post, len(rows))
	out := make([]*models.Post, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
		out[i] = rows[i].toModel()
		byID[rows[i].ID] = out[i]
	}
	tx = tx.WithContext(ctx)

	var likes []likeRow
	if err := tx.Where("post_id IN ?", ids).Order("created_at, user_id").Find(&likes).Error; err != nil {
		return nil, err
	}
	for _, l := range likes {
		p := byID[l.PostID]
		p.Likes = append(p.Likes, l.UserID)
	}

	var comments []commentRow
	if err := tx.Where("post_id IN ?", ids).Order("id").Find(&comments).Error; err != nil {
		return nil, err
	}
	for i := range comments {
		p := byID[comments[i].PostID]
		p.Comments = append(p.Comments, comments[i].toModel())
	}

	var options []pollOptionRow
	if err := tx.Where("post_id IN ?", ids).Order("post_id, idx").Find(&options).Error; err != nil {
		return nil, err
	}
	for _, o := range options {
		p := byID[o.PostID]
		p.PollOptions = append(p.PollOptions, models.PollOption{Text: o.Text, Votes: []string{}})
	}

	if len(options) > 0 {
		var votes []pollVoteRow
		if err := tx.Where("post_id IN ?", ids).Order("user_id").Find(&votes).Error; err != nil {
			return nil, err
		}
		for _, v := range votes {
			p := byID[v.PostID]
			if v.Idx >= 0 && v.Idx < len(p.PollOptions) {
				p.PollOptions[v.Idx].Votes = append(p.PollOptions[v.Idx].Votes, v.UserID)
			}
		}
	}

	return out, nil
}
