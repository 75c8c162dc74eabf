package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type editLockRequest struct {
	Editor string `json:"editor"`
}

type editLockResponse struct {
	Enabled bool   `json:"enabled"`
	Holder  string `json:"holder,omitempty"`
}

// AcquireEditLock takes or refreshes the lock. Clients call it again as a
// heartbeat while the edit form stays open.
func (s *Server) AcquireEditLock(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req editLockRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	who := editor(c, req.Editor)

	if err := s.locker.Acquire(c.Request.Context(), id, who); err != nil {
		AbortWithError(c, err)
		return
	}

	resp := editLockResponse{Enabled: s.locker.Enabled()}
	if resp.Enabled {
		resp.Holder = who
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReleaseEditLock(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := s.locker.Release(c.Request.Context(), id, editor(c, c.Query("editor"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
