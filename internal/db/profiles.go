package db

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/murmurhq/murmur/internal/models"
)

func (r *Repository) AddBookmark(ctx context.Context, uid, postID string) (bool, error) {
	var added bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now, err := serverTime(tx)
		if err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&bookmarkRow{UserID: uid, PostID: postID, CreatedAt: now})
		added = res.RowsAffected == 1
		return res.Error
	})
	return added, translate("db.AddBookmark", "", err)
}

func (r *Repository) RemoveBookmark(ctx context.Context, uid, postID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND post_id = ?", uid, postID).
		Delete(&bookmarkRow{})
	if res.Error != nil {
		return false, translate("db.RemoveBookmark", "", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) ListBookmarks(ctx context.Context, uid string) ([]models.Bookmark, error) {
	var rows []bookmarkRow
	err := r.db.WithContext(ctx).
		Where("user_id = ?", uid).
		Order("created_at DESC, post_id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, translate("db.ListBookmarks", "", err)
	}
	out := make([]models.Bookmark, len(rows))
	for i, b := range rows {
		out[i] = models.Bookmark{UserID: b.UserID, PostID: b.PostID, CreatedAt: b.CreatedAt.UTC()}
	}
	return out, nil
}

func (r *Repository) GetProfile(ctx context.Context, uid string) (*models.UserProfile, error) {
	tx := r.db.WithContext(ctx)
	var row profileRow
	if err := tx.Where("uid = ?", uid).First(&row).Error; err != nil {
		return nil, translate("db.GetProfile", "profile "+uid, err)
	}
	p := row.toModel()
	if err := tx.Model(&followRow{}).Where("followee_id = ?", uid).
		Order("follower_id").Pluck("follower_id", &p.Followers).Error; err != nil {
		return nil, translate("db.GetProfile", "", err)
	}
	if err := tx.Model(&followRow{}).Where("follower_id = ?", uid).
		Order("followee_id").Pluck("followee_id", &p.Following).Error; err != nil {
		return nil, translate("db.GetProfile", "", err)
	}
	return p, nil
}

// SaveProfile upserts the editable columns. The follow graph lives in follows and is untouched.
func (r *Repository) SaveProfile(ctx context.Context, p *models.UserProfile) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "uid"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"display_name", "photo_url", "cover_photo", "bio",
				"location", "occupation", "website", "settings",
			}),
		}).
		Create(newProfileRow(p)).Error
	return translate("db.SaveProfile", "", err)
}

func (r *Repository) SetFollow(ctx context.Context, uid, target string, follow bool) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range []string{uid, target} {
			var row profileRow
			if err := tx.Select("uid").Where("uid = ?", id).First(&row).Error; err != nil {
				return translate("db.SetFollow", "profile "+id, err)
			}
		}
		edge := followRow{FollowerID: uid, FolloweeID: target}
		if follow {
			return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&edge).Error
		}
		return tx.Where("follower_id = ? AND followee_id = ?", uid, target).Delete(&followRow{}).Error
	})
	return translate("db.SetFollow", "", err)
}

// PatchAuthorPosts locks and rewrites one ID-ordered chunk of the author's posts
func (r *Repository) PatchAuthorPosts(ctx context.Context, uid, afterID string, limit int, patch models.AuthorPatch) ([]string, error) {
	updates := map[string]interface{}{}
	if patch.Name != nil {
		updates["author_name"] = *patch.Name
	}
	if patch.PhotoURL != nil {
		updates["author_photo_url"] = *patch.PhotoURL
	}

	var ids []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&postRow{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("author_id = ? AND id > ?", uid, afterID).
			Order("id").
			Limit(limit).
			Pluck("id", &ids).Error
		if err != nil || len(ids) == 0 || len(updates) == 0 {
			return err
		}
		return tx.Model(&postRow{}).Where("id IN ?", ids).Updates(updates).Error
	})
	if err != nil {
		return nil, translate("db.PatchAuthorPosts", "", err)
	}
	return ids, nil
}
