package middleware

import (
	"github.com/gin-gonic/gin"

	"hseptw.io/ptw/internal/governance/workflow"
	apperrors "hseptw.io/ptw/internal/pkg/errors"
)

// RequireCapability rejects callers whose role lacks capability.
// Workflow operations are checked again by the engine; this guards routes
// that have no engine step, such as record creation.
func RequireCapability(policy *workflow.Policy, capability workflow.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c.Request.Context())
		if !ok {
			abort(c, apperrors.Unauthorized(apperrors.CodeAuthFailed, "not authenticated"))
			return
		}
		if !policy.Allows(actor.Role, capability) {
			abort(c, apperrors.PermissionDenied(string(capability), actor.Role))
			return
		}
		c.Next()
	}
}
