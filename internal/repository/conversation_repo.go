package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pomelo/internal/model"
	"pomelo/internal/pkg/cache"
)

// ConversationRepo 对话仓库
// 所有写入都是按对话 id 的单文档更新，跨轮次不加锁，last-writer-wins；
// 配置了 Redis 时单文档读取走 read-through 缓存，写入后失效
type ConversationRepo struct {
	collection *mongo.Collection
	cache      *cache.RedisCache // 可以为 nil
}

// NewConversationRepo 创建对话仓库
func NewConversationRepo(db *mongo.Database, rc *cache.RedisCache) *ConversationRepo {
	return &ConversationRepo{
		collection: db.Collection("conversations"),
		cache:      rc,
	}
}

// Create 创建对话
func (r *ConversationRepo) Create(ctx context.Context, conv *model.Conversation) error {
	conv.CreatedAt = time.Now()
	conv.UpdatedAt = time.Now()
	if conv.Messages == nil {
		conv.Messages = []model.Message{}
	}

	result, err := r.collection.InsertOne(ctx, conv)
	if err != nil {
		return err
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		conv.ID = oid
	}
	return nil
}

// FindByID 根据 ID 查询
func (r *ConversationRepo) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var conv model.Conversation
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&conv)
	if err != nil {
		return nil, err
	}

	return &conv, nil
}

// FindBySession 根据 ID 查询并校验会话归属
// 不属于该会话的对话按不存在处理
func (r *ConversationRepo) FindBySession(ctx context.Context, id, sessionID string) (*model.Conversation, error) {
	if r.cache != nil {
		var cached model.Conversation
		if err := r.cache.Get(ctx, cache.ConversationCacheKey(id), &cached); err == nil {
			if cached.SessionID != sessionID {
				return nil, mongo.ErrNoDocuments
			}
			return &cached, nil
		}
	}

	conv, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.SessionID != sessionID {
		return nil, mongo.ErrNoDocuments
	}

	if r.cache != nil {
		_ = r.cache.Set(ctx, cache.ConversationCacheKey(id), conv, cache.ConversationCacheTTL)
	}
	return conv, nil
}

// ReplaceMessages 整体替换消息列表并更新标题
// 一次生成轮次的正常保存、取消保存、断连兜底保存都走这里
func (r *ConversationRepo) ReplaceMessages(ctx context.Context, id string, messages []model.Message, title string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	update := bson.M{
		"$set": bson.M{
			"messages":   messages,
			"title":      title,
			"updated_at": time.Now(),
		},
	}

	if _, err := r.collection.UpdateByID(ctx, objectID, update); err != nil {
		return err
	}

	r.invalidate(ctx, id)
	return nil
}

// UpdateTitle 重命名对话
func (r *ConversationRepo) UpdateTitle(ctx context.Context, id, title string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	update := bson.M{
		"$set": bson.M{
			"title":      title,
			"updated_at": time.Now(),
		},
	}

	if _, err := r.collection.UpdateByID(ctx, objectID, update); err != nil {
		return err
	}

	r.invalidate(ctx, id)
	return nil
}

// ListBySession 查询会话的对话列表（不带消息体）
func (r *ConversationRepo) ListBySession(ctx context.Context, sessionID string, limit, offset int64) ([]*model.Conversation, error) {
	opts := options.Find().
		SetSort(bson.D{bson.E{Key: "updated_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset).
		SetProjection(bson.M{"messages": 0})

	cursor, err := r.collection.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var convs []*model.Conversation
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, err
	}

	return convs, nil
}

// Delete 删除对话
func (r *ConversationRepo) Delete(ctx context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": objectID}); err != nil {
		return err
	}

	r.invalidate(ctx, id)
	return nil
}

// invalidate 写入后让缓存条目失效，失败只能等 TTL 过期
func (r *ConversationRepo) invalidate(ctx context.Context, id string) {
	if r.cache != nil {
		_ = r.cache.Delete(ctx, cache.ConversationCacheKey(id))
	}
}
