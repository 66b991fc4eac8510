package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/murmurhq/murmur/internal/models"
	"github.com/murmurhq/murmur/internal/store"
)

// Repository is a store.Store backed by PostgreSQL
type Repository struct {
	conn *DB
	db   *gorm.DB
}

var _ store.Store = (*Repository)(nil)

// NewRepository creates a new repository
func NewRepository(conn *DB) *Repository {
	return &Repository{conn: conn, db: conn.DB}
}

// serverTime reads the database clock. clock_timestamp advances within a transaction.
func serverTime(tx *gorm.DB) (time.Time, error) {
	var now time.Time
	if err := tx.Raw("SELECT clock_timestamp()").Row().Scan(&now); err != nil {
		return time.Time{}, err
	}
	return now.UTC(), nil
}

// lockPost takes a row lock on the post, serializing conditional writes against it
func lockPost(tx *gorm.DB, op, id string) error {
	var row postRow
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", id).
		First(&row).Error
	return translate(op, "post "+id, err)
}

func (r *Repository) Now(ctx context.Context) (time.Time, error) {
	now, err := serverTime(r.db.WithContext(ctx))
	return now, translate("db.Now", "", err)
}

// CreatePost inserts the post, its poll options and the optional schedule record in one transaction
func (r *Repository) CreatePost(ctx context.Context, post *models.Post, sched *models.ScheduledPost) (string, error) {
	row := newPostRow(post)
	row.ID = uuid.NewString()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now, err := serverTime(tx)
		if err != nil {
			return err
		}
		row.CreatedAt = now
		if err := tx.Create(row).Error; err != nil {
			return err
		}

		if len(post.PollOptions) > 0 {
			opts := make([]pollOptionRow, len(post.PollOptions))
			for i, o := range post.PollOptions {
				opts[i] = pollOptionRow{PostID: row.ID, Idx: i, Text: o.Text}
			}
			if err := tx.Create(&opts).Error; err != nil {
				return err
			}
		}

		if sched != nil {
			rec := scheduleRow{
				ID:            uuid.NewString(),
				PostID:        row.ID,
				ScheduledDate: sched.ScheduledDate,
				Status:        string(models.SchedulePending),
			}
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", translate("db.CreatePost", "post", err)
	}

	post.ID, post.CreatedAt = row.ID, row.CreatedAt
	return row.ID, nil
}

func (r *Repository) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var row postRow
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, translate("db.GetPost", "post "+id, err)
	}
	posts, err := loadPosts(ctx, r.db, []postRow{row})
	if err != nil {
		return nil, translate("db.GetPost", "post "+id, err)
	}
	return posts[0], nil
}

// ListPosts runs a keyset-paginated query. The row comparison matches the ORDER BY exactly.
func (r *Repository) ListPosts(ctx context.Context, q store.Query) ([]*models.Post, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	tx := r.db.WithContext(ctx).Model(&postRow{})
	if q.Status != "" {
		tx = tx.Where("status = ?", string(q.Status))
	}
	if q.Authors != nil {
		tx = tx.Where("author_id IN ?", q.Authors)
	}
	switch q.Order {
	case store.OrderTrending:
		if q.After != nil {
			tx = tx.Where("(like_count, id) < (?, ?)", q.After.LikeCount, q.After.ID)
		}
		tx = tx.Order("like_count DESC, id DESC")
	default:
		if q.After != nil {
			tx = tx.Where("(created_at, id) < (?, ?)", q.After.CreatedAt, q.After.ID)
		}
		tx = tx.Order("created_at DESC, id DESC")
	}

	var rows []postRow
	if err := tx.Limit(q.Limit).Find(&rows).Error; err != nil {
		return nil, translate("db.ListPosts", "", err)
	}
	posts, err := loadPosts(ctx, r.db, rows)
	if err != nil {
		return nil, translate("db.ListPosts", "", err)
	}
	return posts, nil
}

// DeletePost removes the post and its engagement rows. Schedule records are kept.
func (r *Repository) DeletePost(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&postRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NotFound("db.DeletePost", "post "+id)
		}
		for _, child := range []interface{}{&likeRow{}, &commentRow{}, &pollOptionRow{}, &pollVoteRow{}} {
			if err := tx.Where("post_id = ?", id).Delete(child).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return translate("db.DeletePost", "post "+id, err)
}

func (r *Repository) EditPost(ctx context.Context, id, content string) (*models.Post, error) {
	res := r.db.WithContext(ctx).Model(&postRow{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"content":   content,
			"edited_at": gorm.Expr("clock_timestamp()"),
		})
	if res.Error != nil {
		return nil, translate("db.EditPost", "post "+id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, models.NotFound("db.EditPost", "post "+id)
	}
	return r.GetPost(ctx, id)
}

func (r *Repository) AddLike(ctx context.Context, postID, uid string) (bool, error) {
	var added bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPost(tx, "db.AddLike", postID); err != nil {
			return err
		}
		now, err := serverTime(tx)
		if err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&likeRow{PostID: postID, UserID: uid, CreatedAt: now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		added = true
		return tx.Model(&postRow{}).Where("id = ?", postID).
			UpdateColumn("like_count", gorm.Expr("like_count + 1")).Error
	})
	return added, translate("db.AddLike", "post "+postID, err)
}

func (r *Repository) RemoveLike(ctx context.Context, postID, uid string) (bool, error) {
	var removed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPost(tx, "db.RemoveLike", postID); err != nil {
			return err
		}
		res := tx.Where("post_id = ? AND user_id = ?", postID, uid).Delete(&likeRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		removed = true
		return tx.Model(&postRow{}).Where("id = ?", postID).
			UpdateColumn("like_count", gorm.Expr("like_count - 1")).Error
	})
	return removed, translate("db.RemoveLike", "post "+postID, err)
}

func (r *Repository) AppendComment(ctx context.Context, postID string, c models.Comment) error {
	if err := models.CheckComment(c); err != nil {
		return err
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPost(tx, "db.AppendComment", postID); err != nil {
			return err
		}
		now, err := serverTime(tx)
		if err != nil {
			return err
		}
		return tx.Create(&commentRow{
			PostID:         postID,
			Content:        c.Content,
			AuthorID:       c.AuthorID,
			AuthorName:     c.AuthorName,
			AuthorPhotoURL: c.AuthorPhotoURL,
			CreatedAt:      now,
		}).Error
	})
	return translate("db.AppendComment", "post "+postID, err)
}

// RecordVote relies on poll_votes' (post_id, user_id) key to reject a second vote
func (r *Repository) RecordVote(ctx context.Context, postID string, idx int, uid string) (bool, error) {
	var recorded bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPost(tx, "db.RecordVote", postID); err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&pollOptionRow{}).Where("post_id = ?", postID).Count(&n).Error; err != nil {
			return err
		}
		shape := &models.Post{ID: postID, PollOptions: make([]models.PollOption, n)}
		if err := shape.CheckVote(idx); err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&pollVoteRow{PostID: postID, UserID: uid, Idx: idx})
		if res.Error != nil {
			return res.Error
		}
		recorded = res.RowsAffected == 1
		return nil
	})
	return recorded, translate("db.RecordVote", "post "+postID, err)
}

func (r *Repository) IncrementShares(ctx context.Context, postID string) error {
	res := r.db.WithContext(ctx).Model(&postRow{}).
		Where("id = ?", postID).
		UpdateColumn("shares", gorm.Expr("shares + 1"))
	if res.Error != nil {
		return translate("db.IncrementShares", "post "+postID, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NotFound("db.IncrementShares", "post "+postID)
	}
	return nil
}

// PromoteDue claims due schedule records with SKIP LOCKED so concurrent schedulers never
// promote the same record, and flips records and posts in one transaction.
func (r *Repository) PromoteDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var promoted []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND scheduled_date <= ?", string(models.SchedulePending), now).
			Order("scheduled_date, id")
		if limit > 0 {
			q = q.Limit(limit)
		}
		var due []scheduleRow
		if err := q.Find(&due).Error; err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}

		schedIDs := make([]string, len(due))
		postIDs := make([]string, len(due))
		for i, rec := range due {
			schedIDs[i], postIDs[i] = rec.ID, rec.PostID
		}
		if err := tx.Model(&scheduleRow{}).Where("id IN ?", schedIDs).
			Update("status", string(models.ScheduleCompleted)).Error; err != nil {
			return err
		}

		// the post may have been deleted while it waited
		var existing []string
		if err := tx.Model(&postRow{}).Where("id IN ?", postIDs).Pluck("id", &existing).Error; err != nil {
			return err
		}
		if len(existing) == 0 {
			return nil
		}
		if err := tx.Model(&postRow{}).Where("id IN ?", existing).
			Update("status", string(models.StatusPublished)).Error; err != nil {
			return err
		}

		live := make(map[string]bool, len(existing))
		for _, id := range existing {
			live[id] = true
		}
		for _, id := range postIDs {
			if live[id] {
				promoted = append(promoted, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, translate("db.PromoteDue", "", err)
	}
	return promoted, nil
}

func (r *Repository) Close(context.Context) error {
	return r.conn.Close()
}
