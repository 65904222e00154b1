package response

import (
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// failure is the envelope every error response uses.
type failure struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// OK sends a 200 response. Arrays/slices are wrapped in {data: [...]}.
func OK(c *gin.Context, data interface{}) {
	if data != nil {
		v := reflect.ValueOf(data)
		if v.Kind() == reflect.Slice {
			c.JSON(http.StatusOK, gin.H{"data": data})
			return
		}
	}
	c.JSON(http.StatusOK, data)
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Failed aborts with {status: "failed", message} and the given HTTP status.
func Failed(c *gin.Context, code int, message string) {
	if message == "" {
		message = http.StatusText(code)
	}
	c.AbortWithStatusJSON(code, failure{Status: StatusFailed, Code: code, Message: message})
}

// BadRequest sends a 400 error response.
func BadRequest(c *gin.Context, message string) {
	Failed(c, http.StatusBadRequest, message)
}

// Unauthorized sends a 401 error response.
func Unauthorized(c *gin.Context) {
	Failed(c, http.StatusUnauthorized, "not signed in")
}

// NotFoundMsg sends a 404 error with a custom message.
func NotFoundMsg(c *gin.Context, message string) {
	Failed(c, http.StatusNotFound, message)
}

// InternalError sends a 500 error response. The error text is not exposed.
func InternalError(c *gin.Context, err error) {
	_ = c.Error(err)
	Failed(c, http.StatusInternalServerError, "internal server error")
}

// TooManyRequests sends a 429 error response.
func TooManyRequests(c *gin.Context, message string) {
	Failed(c, http.StatusTooManyRequests, message)
}

// Conflict sends a 409 error response.
func Conflict(c *gin.Context, message string) {
	Failed(c, http.StatusConflict, message)
}
