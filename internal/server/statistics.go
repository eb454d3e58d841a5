package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) GetStatistics(c *gin.Context) {
	semesterID, err := parseOptionalSnowflakeID(c.Query("semester_id"))
	if err != nil {
		AbortWithError(c, newValidationError("semester_id", "invalid_semester_id", "invalid semester_id"))
		return
	}

	var id snowflake.ID
	if semesterID != nil {
		id = *semesterID
	}

	stats, err := s.statisticsSvc.GetStatistics(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}
