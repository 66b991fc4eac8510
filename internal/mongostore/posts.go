package mongostore

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/murmurhq/murmur/internal/models"
	"github.com/murmurhq/murmur/internal/store"
)

func (s *Store) CreatePost(ctx context.Context, post *models.Post, sched *models.ScheduledPost) (string, error) {
	now, err := s.stamp(ctx)
	if err != nil {
		return "", err
	}
	doc := post.Clone()
	doc.ID = uuid.NewString()
	doc.CreatedAt = now
	doc.LikeCount = len(doc.Likes)

	if sched == nil {
		if _, err := s.posts.InsertOne(ctx, doc); err != nil {
			return "", translate("mongostore.CreatePost", "", err)
		}
	} else {
		rec := models.ScheduledPost{
			ID:            uuid.NewString(),
			PostID:        doc.ID,
			ScheduledDate: sched.ScheduledDate,
			Status:        models.SchedulePending,
		}
		err := s.withTx(ctx, func(sc mongo.SessionContext) error {
			if _, err := s.posts.InsertOne(sc, doc); err != nil {
				return err
			}
			_, err := s.schedules.InsertOne(sc, rec)
			return err
		})
		if err != nil {
			return "", translate("mongostore.CreatePost", "", err)
		}
	}

	post.ID, post.CreatedAt = doc.ID, doc.CreatedAt
	return doc.ID, nil
}

func (s *Store) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var p models.Post
	if err := s.posts.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, translate("mongostore.GetPost", "post "+id, err)
	}
	return normalize(&p), nil
}

// normalize replaces nulls decoded from documents with empty slices
func normalize(p *models.Post) *models.Post {
	if p.Likes == nil {
		p.Likes = []string{}
	}
	if p.Comments == nil {
		p.Comments = []models.Comment{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	for i := range p.PollOptions {
		if p.PollOptions[i].Votes == nil {
			p.PollOptions[i].Votes = []string{}
		}
	}
	return p
}

// keyField returns the sort key field for order
func keyField(order store.Order) string {
	if order == store.OrderTrending {
		return "likeCount"
	}
	return "createdAt"
}

// queryFilter builds the find filter for q. The cursor clause is the keyset
// "(key, _id) < (cursor.key, cursor.id)" spelled as an $or.
func queryFilter(q store.Query) bson.M {
	filter := bson.M{}
	if q.Status != "" {
		filter["status"] = q.Status
	}
	if q.Authors != nil {
		filter["authorId"] = bson.M{"$in": q.Authors}
	}
	if c := q.After; c != nil {
		key := keyField(q.Order)
		var val interface{} = c.CreatedAt
		if q.Order == store.OrderTrending {
			val = c.LikeCount
		}
		filter["$or"] = bson.A{
			bson.M{key: bson.M{"$lt": val}},
			bson.M{key: val, "_id": bson.M{"$lt": c.ID}},
		}
	}
	return filter
}

func (s *Store) ListPosts(ctx context.Context, q store.Query) ([]*models.Post, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: keyField(q.Order), Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(q.Limit))

	cur, err := s.posts.Find(ctx, queryFilter(q), opts)
	if err != nil {
		return nil, translate("mongostore.ListPosts", "", err)
	}
	var docs []*models.Post
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translate("mongostore.ListPosts", "", err)
	}
	for _, p := range docs {
		normalize(p)
	}
	if docs == nil {
		docs = []*models.Post{}
	}
	return docs, nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	res, err := s.posts.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return translate("mongostore.DeletePost", "", err)
	}
	if res.DeletedCount == 0 {
		return models.NotFound("mongostore.DeletePost", "post "+id)
	}
	return nil
}

// EditPost stamps editedAt with $$NOW in a pipeline update
func (s *Store) EditPost(ctx context.Context, id, content string) (*models.Post, error) {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "content", Value: bson.M{"$literal": content}},
			{Key: "editedAt", Value: "$$NOW"},
		}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var p models.Post
	if err := s.posts.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&p); err != nil {
		return nil, translate("mongostore.EditPost", "post "+id, err)
	}
	return normalize(&p), nil
}

// exists distinguishes "no change" from "no post" after a conditional update matched nothing
func (s *Store) exists(ctx context.Context, op, id string) error {
	n, err := s.posts.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return translate(op, "", err)
	}
	if n == 0 {
		return models.NotFound(op, "post "+id)
	}
	return nil
}

func (s *Store) AddLike(ctx context.Context, postID, uid string) (bool, error) {
	res, err := s.posts.UpdateOne(ctx,
		bson.M{"_id": postID, "likes": bson.M{"$ne": uid}},
		bson.M{"$push": bson.M{"likes": uid}, "$inc": bson.M{"likeCount": 1}},
	)
	if err != nil {
		return false, translate("mongostore.AddLike", "", err)
	}
	if res.ModifiedCount == 1 {
		return true, nil
	}
	return false, s.exists(ctx, "mongostore.AddLike", postID)
}

func (s *Store) RemoveLike(ctx context.Context, postID, uid string) (bool, error) {
	res, err := s.posts.UpdateOne(ctx,
		bson.M{"_id": postID, "likes": uid},
		bson.M{"$pull": bson.M{"likes": uid}, "$inc": bson.M{"likeCount": -1}},
	)
	if err != nil {
		return false, translate("mongostore.RemoveLike", "", err)
	}
	if res.ModifiedCount == 1 {
		return true, nil
	}
	return false, s.exists(ctx, "mongostore.RemoveLike", postID)
}

// AppendComment appends in a pipeline update so createdAt is the server's $$NOW
func (s *Store) AppendComment(ctx context.Context, postID string, c models.Comment) error {
	if err := models.CheckComment(c); err != nil {
		return err
	}
	entry := bson.D{
		{Key: "content", Value: bson.M{"$literal": c.Content}},
		{Key: "authorId", Value: bson.M{"$literal": c.AuthorID}},
		{Key: "authorName", Value: bson.M{"$literal": c.AuthorName}},
		{Key: "authorPhotoURL", Value: bson.M{"$literal": c.AuthorPhotoURL}},
		{Key: "createdAt", Value: "$$NOW"},
	}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "comments", Value: bson.M{"$concatArrays": bson.A{
				bson.M{"$ifNull": bson.A{"$comments", bson.A{}}},
				bson.A{entry},
			}}},
		}}},
	}
	res, err := s.posts.UpdateOne(ctx, bson.M{"_id": postID}, update)
	if err != nil {
		return translate("mongostore.AppendComment", "", err)
	}
	if res.MatchedCount == 0 {
		return models.NotFound("mongostore.AppendComment", "post "+postID)
	}
	return nil
}

// RecordVote pushes uid onto option idx only if uid appears in no option's votes
func (s *Store) RecordVote(ctx context.Context, postID string, idx int, uid string) (bool, error) {
	var shape models.Post
	opts := options.FindOne().SetProjection(bson.M{"pollOptions.text": 1})
	if err := s.posts.FindOne(ctx, bson.M{"_id": postID}, opts).Decode(&shape); err != nil {
		return false, translate("mongostore.RecordVote", "post "+postID, err)
	}
	if err := shape.CheckVote(idx); err != nil {
		return false, err
	}

	field := "pollOptions." + strconv.Itoa(idx) + ".votes"
	res, err := s.posts.UpdateOne(ctx,
		bson.M{"_id": postID, "pollOptions.votes": bson.M{"$ne": uid}},
		bson.M{"$push": bson.M{field: uid}},
	)
	if err != nil {
		return false, translate("mongostore.RecordVote", "", err)
	}
	return res.ModifiedCount == 1, nil
}

func (s *Store) IncrementShares(ctx context.Context, postID string) error {
	res, err := s.posts.UpdateOne(ctx, bson.M{"_id": postID}, bson.M{"$inc": bson.M{"shares": 1}})
	if err != nil {
		return translate("mongostore.IncrementShares", "", err)
	}
	if res.MatchedCount == 0 {
		return models.NotFound("mongostore.IncrementShares", "post "+postID)
	}
	return nil
}

// PromoteDue flips due records and their posts in one transaction. A concurrent run
// conflicts on the same records and is retried by the driver against fresh state.
func (s *Store) PromoteDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var promoted []string
	err := s.withTx(ctx, func(sc mongo.SessionContext) error {
		promoted = nil

		opts := options.Find().SetSort(bson.D{{Key: "scheduledDate", Value: 1}, {Key: "_id", Value: 1}})
		if limit > 0 {
			opts.SetLimit(int64(limit))
		}
		cur, err := s.schedules.Find(sc, bson.M{
			"status":        models.SchedulePending,
			"scheduledDate": bson.M{"$lte": now},
		}, opts)
		if err != nil {
			return err
		}
		var due []models.ScheduledPost
		if err := cur.All(sc, &due); err != nil {
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
		if _, err := s.schedules.UpdateMany(sc,
			bson.M{"_id": bson.M{"$in": schedIDs}, "status": models.SchedulePending},
			bson.M{"$set": bson.M{"status": models.ScheduleCompleted}},
		); err != nil {
			return err
		}

		// the post may have been deleted while it waited
		existing, err := s.posts.Distinct(sc, "_id", bson.M{"_id": bson.M{"$in": postIDs}})
		if err != nil {
			return err
		}
		live := make(map[string]bool, len(existing))
		for _, v := range existing {
			if id, ok := v.(string); ok {
				live[id] = true
			}
		}
		for _, id := range postIDs {
			if live[id] {
				promoted = append(promoted, id)
			}
		}
		if len(promoted) == 0 {
			return nil
		}
		_, err = s.posts.UpdateMany(sc,
			bson.M{"_id": bson.M{"$in": promoted}},
			bson.M{"$set": bson.M{"status": models.StatusPublished}},
		)
		return err
	})
	if err != nil {
		return nil, translate("mongostore.PromoteDue", "", err)
	}
	return promoted, nil
}
