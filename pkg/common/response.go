package common

import (
	"github.com/gin-gonic/gin"
)

// Response is the envelope for every API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// ErrorInfo describes a failed request
type ErrorInfo struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// SuccessResponse sends a 200 response with data
func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Success: true,
		Data:    data,
	})
}

// SuccessResponseWithMeta sends a 200 response with data and list metadata
func SuccessResponseWithMeta(c *gin.Context, data interface{}, meta interface{}) {
	c.JSON(200, Response{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

// SuccessResponseWithStatus sends a success response with a custom status and message
func SuccessResponseWithStatus(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, Response{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// CreatedResponse sends a 201 response with data
func CreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Success: true,
		Data:    data,
	})
}

// ErrorResponse sends an error response
func ErrorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    status,
			Message: message,
		},
	})
}

// ErrorResponseWithRequestID sends an error response that names the request it belongs to
func ErrorResponseWithRequestID(c *gin.Context, status int, message, requestID string) {
	c.JSON(status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      status,
			Message:   message,
			RequestID: requestID,
		},
	})
}

// AppErrorResponse sends the response described by an AppError
func AppErrorResponse(c *gin.Context, err *AppError) {
	ErrorResponse(c, err.Code, err.Message)
}
