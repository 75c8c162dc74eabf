package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	txlogdomain "github.com/smallbiznis/guesthouse/internal/txlog/domain"
)

func (s *Server) ListRecentTransactions(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}

	entries, err := s.txlog.ListRecent(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func (s *Server) ListTransactions(c *gin.Context) {
	pageSize, ok := queryInt(c, "page_size")
	if !ok {
		return
	}
	onlyUndo, ok := queryBool(c, "only_undoable")
	if !ok {
		return
	}

	req := txlogdomain.ListRequest{
		PageToken: c.Query("page_token"),
		PageSize:  pageSize,
		OnlyUndo:  onlyUndo,
	}
	if raw := strings.TrimSpace(c.Query("entity_type")); raw != "" {
		req.EntityType = txlogdomain.EntityType(raw)
		if !req.EntityType.Valid() {
			AbortWithError(c, newValidationError("entity_type", "invalid_entity_type", "unknown entity type"))
			return
		}
	}
	entityID, ok := parseOptionalSnowflakeID(c.Query("entity_id"))
	if !ok {
		AbortWithError(c, newValidationError("entity_id", "invalid_id", "invalid entity id"))
		return
	}
	if entityID != nil {
		req.EntityID = *entityID
	}

	resp, err := s.txlog.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UndoTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	result, err := s.undo.Undo(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
