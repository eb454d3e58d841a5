package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type checkAccessQuery struct {
	StudentID  string `form:"student_id"`
	ResourceID string `form:"resource_id"`
}

// CheckAccess answers whether a student may open a course resource. A
// student actor that omits student_id is checked as itself.
func (s *Server) CheckAccess(c *gin.Context) {
	var query checkAccessQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resourceID, err := idParam(query.ResourceID, "resource_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	studentID, err := parseOptionalSnowflakeID(query.StudentID)
	if err != nil {
		AbortWithError(c, newValidationError("student_id", "invalid_student_id", "invalid student_id"))
		return
	}
	if studentID == nil {
		actor, ok := actorFromContext(c)
		if !ok || !actor.isStudent() {
			AbortWithError(c, newValidationError("student_id", "invalid_student_id", "invalid student_id"))
			return
		}
		own, err := actor.studentID()
		if err != nil {
			AbortWithError(c, err)
			return
		}
		studentID = &own
	}
	if err := ensureStudentScope(c, *studentID); err != nil {
		AbortWithError(c, err)
		return
	}

	decision, err := s.accessSvc.CheckAccess(c.Request.Context(), *studentID, resourceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": decision})
}
