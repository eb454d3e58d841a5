package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/bursar/internal/authorization"
	obscontext "github.com/smallbiznis/bursar/internal/observability/context"
)

// Actor is the caller identity forwarded by the gateway in the X-Actor-Id and
// X-Actor-Role headers.
type Actor struct {
	ID   string
	Role string
}

func (a Actor) isStudent() bool {
	return a.Role == authorization.RoleStudent
}

// studentID is the snowflake id of a student actor.
func (a Actor) studentID() (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(a.ID))
	if err != nil || id == 0 {
		return 0, ErrUnauthorized
	}
	return id, nil
}

func actorFromContext(c *gin.Context) (Actor, bool) {
	if c == nil || c.Request == nil {
		return Actor{}, false
	}
	role, id := obscontext.ActorFromContext(c.Request.Context())
	if role == "" || id == "" {
		return Actor{}, false
	}
	return Actor{ID: id, Role: role}, true
}

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorizeWithContext(c, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeWithContext(c *gin.Context, object string, action string) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return ErrUnauthorized
	}
	if s.authzSvc == nil {
		return ErrForbidden
	}
	return s.authzSvc.Authorize(c.Request.Context(), actor.Role, strings.TrimSpace(object), strings.TrimSpace(action))
}

// ensureStudentScope rejects a student actor reading another student's
// records. Staff roles pass through.
func ensureStudentScope(c *gin.Context, studentID snowflake.ID) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return ErrUnauthorized
	}
	if !actor.isStudent() {
		return nil
	}
	own, err := actor.studentID()
	if err != nil {
		return err
	}
	if own != studentID {
		return ErrForbidden
	}
	return nil
}
