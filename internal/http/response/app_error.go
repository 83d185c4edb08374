package response

import "net/http"

// AppError 统一错误包装
type AppError struct {
	Code    int
	Message string
	Err     error
	// HTTPStatus 为 0 时按 200 返回，业务码放在响应体
	HTTPStatus int
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Status 实际写出的 HTTP 状态码
func (e *AppError) Status() int {
	if e == nil || e.HTTPStatus == 0 {
		return http.StatusOK
	}
	return e.HTTPStatus
}

// WrapError 包装错误
func WrapError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
