package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-engine/internal/models"
	"chat-engine/internal/status"
)

// respond writes a successful result. Every body carries code and message
// next to the payload fields.
func respond(c *gin.Context, payload gin.H) {
	ok := status.Success()
	body := gin.H{"code": ok.Code, "message": ok.Message}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(ok.HTTPStatus(), body)
}

// fail resolves err to a status and writes it. Internal failures are logged
// and reported with a generic message.
func fail(c *gin.Context, logger *zap.Logger, err error) {
	st := status.FromError(err)
	if st.Code == status.Internal {
		_ = c.Error(err)
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", requestIDFromContext(c)),
			zap.Error(err),
		)
	}
	c.JSON(st.HTTPStatus(), gin.H{"code": st.Code, "message": st.Message})
}

func invalidBody(c *gin.Context, err error) {
	st := status.Status{Code: status.InvalidInput, Message: "invalid request body: " + err.Error()}
	c.JSON(st.HTTPStatus(), gin.H{"code": st.Code, "message": st.Message})
}

// pageParam reads the 1-based page query parameter, defaulting to the first page.
func pageParam(c *gin.Context) (int, error) {
	raw := c.Query("page")
	if raw == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, models.ErrInvalidPage
	}
	return page, nil
}

func pagePayload[T any](p models.Page[T], key string) gin.H {
	return gin.H{key: p.Items, "page": p.Page, "total_pages": p.TotalPages}
}
