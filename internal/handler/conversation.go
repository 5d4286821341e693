package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"

	"pomelo/internal/model"
	"pomelo/internal/pkg/ctxutil"
	"pomelo/internal/pkg/ratelimit"
	"pomelo/internal/repository"
	"pomelo/internal/service"
)

// ConversationHandler 对话处理器
type ConversationHandler struct {
	repo         *repository.ConversationRepo
	chatSvc      *service.ChatService
	limiter      *ratelimit.Limiter
	defaultModel string
	defaultTitle string
}

// NewConversationHandler 创建对话处理器
func NewConversationHandler(
	repo *repository.ConversationRepo,
	chatSvc *service.ChatService,
	limiter *ratelimit.Limiter,
	defaultModel, defaultTitle string,
) *ConversationHandler {
	return &ConversationHandler{
		repo:         repo,
		chatSvc:      chatSvc,
		limiter:      limiter,
		defaultModel: defaultModel,
		defaultTitle: defaultTitle,
	}
}

// Create 创建对话
func (h *ConversationHandler) Create(c *gin.Context) {
	var req model.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Code:    40001,
			Message: "Invalid request body",
			Detail:  err.Error(),
		})
		return
	}

	sessionID, _ := ctxutil.GetSessionID(c.Request.Context())

	modelName := req.Model
	if modelName == "" {
		modelName = h.defaultModel
	}
	title := req.Title
	if title == "" {
		title = h.defaultTitle
	}

	conv := &model.Conversation{
		SessionID: sessionID,
		Title:     title,
		Model:     modelName,
		Messages:  []model.Message{},
	}
	if err := h.repo.Create(c.Request.Context(), conv); err != nil {
		log.Error().Err(err).Msg("failed to create conversation")
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Code:    50001,
			Message: "Failed to create conversation",
		})
		return
	}

	c.JSON(http.StatusCreated, conv)
}

// List 对话列表（不含消息体）
func (h *ConversationHandler) List(c *gin.Context) {
	sessionID, _ := ctxutil.GetSessionID(c.Request.Context())

	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	offset, _ := strconv.ParseInt(c.DefaultQuery("offset", "0"), 10, 64)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	convs, err := h.repo.ListBySession(c.Request.Context(), sessionID, limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("failed to list conversations")
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Code:    50001,
			Message: "Failed to list conversations",
		})
		return
	}

	c.JSON(http.StatusOK, model.ConversationListResponse{
		Conversations: convs,
		Total:         len(convs),
	})
}

// Get 对话详情
func (h *ConversationHandler) Get(c *gin.Context) {
	conv, ok := h.findOwned(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Generate 发起一个生成轮次，进度以 NDJSON 流式返回
func (h *ConversationHandler) Generate(c *gin.Context) {
	var req model.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Code:    40001,
			Message: "Invalid request body",
			Detail:  err.Error(),
		})
		return
	}

	// 纯空白输入在任何副作用之前拒绝
	req.Inputs = strings.TrimSpace(req.Inputs)
	if req.Inputs == "" {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Code:    40001,
			Message: "Invalid request body",
			Detail:  "inputs must not be blank",
		})
		return
	}

	conv, ok := h.findOwned(c)
	if !ok {
		return
	}

	// 配额检查先于任何状态变更
	sessionID, _ := ctxutil.GetSessionID(c.Request.Context())
	allowed, err := h.limiter.Record(c.Request.Context(), sessionID)
	if err != nil {
		log.Warn().Err(err).Msg("rate limiter unavailable")
	}
	if !allowed {
		c.JSON(http.StatusTooManyRequests, model.ErrorResponse{
			Code:    42901,
			Message: "Exceeded number of messages before login",
		})
		return
	}

	updates, err := h.chatSvc.StreamTurn(c.Request.Context(), conv, &req)
	if err != nil {
		if errors.Is(err, service.ErrModelNotAvailable) {
			c.JSON(http.StatusGone, model.ErrorResponse{
				Code:    41001,
				Message: "Model not available anymore",
			})
			return
		}
		log.Error().Err(err).Msg("failed to start generation")
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Code:    50001,
			Message: "Failed to start generation",
		})
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	enc := json.NewEncoder(c.Writer)
	c.Stream(func(w io.Writer) bool {
		update, more := <-updates
		if !more {
			return false
		}
		if err := enc.Encode(update); err != nil {
			return false
		}
		return true
	})
}

// Stop 记录停止生成信号
func (h *ConversationHandler) Stop(c *gin.Context) {
	conv, ok := h.findOwned(c)
	if !ok {
		return
	}

	if err := h.chatSvc.Stop(c.Request.Context(), conv.ID.Hex()); err != nil {
		log.Error().Err(err).Msg("failed to record stop signal")
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Code:    50001,
			Message: "Failed to stop generation",
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// Rename 重命名对话
func (h *ConversationHandler) Rename(c *gin.Context) {
	var req model.RenameConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Code:    40001,
			Message: "Invalid request body",
			Detail:  err.Error(),
		})
		return
	}

	conv, ok := h.findOwned(c)
	if !ok {
		return
	}

	if err := h.repo.UpdateTitle(c.Request.Context(), conv.ID.Hex(), req.Title); err != nil {
		log.Error().Err(err).Msg("failed to rename conversation")
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Code:    50001,
			Message: "Failed to rename conversation",
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// Delete 删除对话
func (h *ConversationHandler) Delete(c *gin.Context) {
	conv, ok := h.findOwned(c)
	if !ok {
		return
	}

	if err := h.repo.Delete(c.Request.Context(), conv.ID.Hex()); err != nil {
		log.Error().Err(err).Msg("failed to delete conversation")
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Code:    50001,
			Message: "Failed to delete conversation",
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// findOwned 查询对话并校验会话归属，不存在或不属于当前会话都按 404 处理
func (h *ConversationHandler) findOwned(c *gin.Context) (*model.Conversation, bool) {
	sessionID, _ := ctxutil.GetSessionID(c.Request.Context())

	conv, err := h.repo.FindBySession(c.Request.Context(), c.Param("id"), sessionID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, model.ErrorResponse{
				Code:    40401,
				Message: "Conversation not found",
			})
		} else {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{
				Code:    40002,
				Message: "Invalid conversation id",
				Detail:  err.Error(),
			})
		}
		return nil, false
	}

	return conv, true
}
