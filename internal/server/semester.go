package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListSemesters(c *gin.Context) {
	items, err := s.semesterSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetCurrentSemester(c *gin.Context) {
	item, err := s.semesterSvc.GetCurrent(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) GetSemester(c *gin.Context) {
	id, err := idParam(c.Param("id"), "semester_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.semesterSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) SetCurrentSemester(c *gin.Context) {
	id, err := idParam(c.Param("id"), "semester_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.semesterSvc.SetCurrent(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}
