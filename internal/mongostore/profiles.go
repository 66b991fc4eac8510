package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/murmurhq/murmur/internal/models"
)

type bookmarkDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"userId"`
	PostID    string    `bson:"postId"`
	CreatedAt time.Time `bson:"createdAt"`
}

// bookmarkID is the composite key; its uniqueness makes insert the existence check
func bookmarkID(uid, postID string) string {
	return uid + "_" + postID
}

func (s *Store) AddBookmark(ctx context.Context, uid, postID string) (bool, error) {
	now, err := s.stamp(ctx)
	if err != nil {
		return false, err
	}
	_, err = s.bookmarks.InsertOne(ctx, bookmarkDoc{
		ID:        bookmarkID(uid, postID),
		UserID:    uid,
		PostID:    postID,
		CreatedAt: now,
	})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, translate("mongostore.AddBookmark", "", err)
	}
	return true, nil
}

func (s *Store) RemoveBookmark(ctx context.Context, uid, postID string) (bool, error) {
	res, err := s.bookmarks.DeleteOne(ctx, bson.M{"_id": bookmarkID(uid, postID)})
	if err != nil {
		return false, translate("mongostore.RemoveBookmark", "", err)
	}
	return res.DeletedCount == 1, nil
}

func (s *Store) ListBookmarks(ctx context.Context, uid string) ([]models.Bookmark, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.bookmarks.Find(ctx, bson.M{"userId": uid}, opts)
	if err != nil {
		return nil, translate("mongostore.ListBookmarks", "", err)
	}
	var docs []bookmarkDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translate("mongostore.ListBookmarks", "", err)
	}
	out := make([]models.Bookmark, len(docs))
	for i, d := range docs {
		out[i] = models.Bookmark{UserID: d.UserID, PostID: d.PostID, CreatedAt: d.CreatedAt.UTC()}
	}
	return out, nil
}

// profileDoc stores settings as a JSON string; UserProfile keeps them out of BSON
type profileDoc struct {
	UID         string   `bson:"_id"`
	DisplayName string   `bson:"displayName"`
	PhotoURL    string   `bson:"photoURL"`
	CoverPhoto  string   `bson:"coverPhoto"`
	Bio         string   `bson:"bio"`
	Location    string   `bson:"location"`
	Occupation  string   `bson:"occupation"`
	Website     string   `bson:"website"`
	Followers   []string `bson:"followers"`
	Following   []string `bson:"following"`
	Settings    string   `bson:"settings,omitempty"`
}

func (d *profileDoc) toModel() *models.UserProfile {
	p := &models.UserProfile{
		UID:         d.UID,
		DisplayName: d.DisplayName,
		PhotoURL:    d.PhotoURL,
		CoverPhoto:  d.CoverPhoto,
		Bio:         d.Bio,
		Location:    d.Location,
		Occupation:  d.Occupation,
		Website:     d.Website,
		Followers:   d.Followers,
		Following:   d.Following,
	}
	if p.Followers == nil {
		p.Followers = []string{}
	}
	if p.Following == nil {
		p.Following = []string{}
	}
	if d.Settings != "" {
		p.Settings = []byte(d.Settings)
	}
	return p
}

func (s *Store) GetProfile(ctx context.Context, uid string) (*models.UserProfile, error) {
	var d profileDoc
	if err := s.profiles.FindOne(ctx, bson.M{"_id": uid}).Decode(&d); err != nil {
		return nil, translate("mongostore.GetProfile", "profile "+uid, err)
	}
	return d.toModel(), nil
}

// SaveProfile upserts the editable fields; follow arrays are only initialized on insert
func (s *Store) SaveProfile(ctx context.Context, p *models.UserProfile) error {
	update := bson.M{
		"$set": bson.M{
			"displayName": p.DisplayName,
			"photoURL":    p.PhotoURL,
			"coverPhoto":  p.CoverPhoto,
			"bio":         p.Bio,
			"location":    p.Location,
			"occupation":  p.Occupation,
			"website":     p.Website,
			"settings":    string(p.Settings),
		},
		"$setOnInsert": bson.M{
			"followers": bson.A{},
			"following": bson.A{},
		},
	}
	_, err := s.profiles.UpdateOne(ctx, bson.M{"_id": p.UID}, update, options.Update().SetUpsert(true))
	return translate("mongostore.SaveProfile", "", err)
}

// SetFollow updates both sides of the edge in one transaction
func (s *Store) SetFollow(ctx context.Context, uid, target string, follow bool) error {
	op := "$pull"
	if follow {
		op = "$addToSet"
	}
	err := s.withTx(ctx, func(sc mongo.SessionContext) error {
		for _, edge := range []struct{ id, field, value string }{
			{uid, "following", target},
			{target, "followers", uid},
		} {
			res, err := s.profiles.UpdateOne(sc, bson.M{"_id": edge.id}, bson.M{op: bson.M{edge.field: edge.value}})
			if err != nil {
				return err
			}
			if res.MatchedCount == 0 {
				return models.NotFound("mongostore.SetFollow", "profile "+edge.id)
			}
		}
		return nil
	})
	return translate("mongostore.SetFollow", "", err)
}

// PatchAuthorPosts rewrites one ID-ordered chunk inside a transaction
func (s *Store) PatchAuthorPosts(ctx context.Context, uid, afterID string, limit int, patch models.AuthorPatch) ([]string, error) {
	set := bson.M{}
	if patch.Name != nil {
		set["authorName"] = *patch.Name
	}
	if patch.PhotoURL != nil {
		set["authorPhotoURL"] = *patch.PhotoURL
	}

	var ids []string
	err := s.withTx(ctx, func(sc mongo.SessionContext) error {
		ids = nil
		opts := options.Find().
			SetSort(bson.D{{Key: "_id", Value: 1}}).
			SetLimit(int64(limit)).
			SetProjection(bson.M{"_id": 1})
		cur, err := s.posts.Find(sc, bson.M{"authorId": uid, "_id": bson.M{"$gt": afterID}}, opts)
		if err != nil {
			return err
		}
		var docs []struct {
			ID string `bson:"_id"`
		}
		if err := cur.All(sc, &docs); err != nil {
			return err
		}
		for _, d := range docs {
			ids = append(ids, d.ID)
		}
		if len(ids) == 0 || len(set) == 0 {
			return nil
		}
		_, err = s.posts.UpdateMany(sc, bson.M{"_id": bson.M{"$in": ids}}, bson.M{"$set": set})
		return err
	})
	if err != nil {
		return nil, translate("mongostore.PatchAuthorPosts", "", err)
	}
	return ids, nil
}
