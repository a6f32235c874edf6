package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	ErrCodeInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"

	// 输入与格式
	ErrCodeValidationFailed    ErrorCode = "VALIDATION_FAILED"
	ErrCodeUnsupportedFileType ErrorCode = "UNSUPPORTED_FILE_TYPE"
	ErrCodeUnsupportedFormat   ErrorCode = "UNSUPPORTED_FORMAT"
	ErrCodeUnsupportedMethod   ErrorCode = "UNSUPPORTED_METHOD"
	ErrCodeResourceNotFound    ErrorCode = "RESOURCE_NOT_FOUND"

	// 流水线阶段
	ErrCodeExtractionFailed ErrorCode = "EXTRACTION_FAILED"
	ErrCodeEmbeddingFailed  ErrorCode = "EMBEDDING_FAILED"

	// 依赖服务
	ErrCodeStorage   ErrorCode = "STORAGE_ERROR"
	ErrCodeDatabase  ErrorCode = "DATABASE_ERROR"
	ErrCodeMessaging ErrorCode = "MESSAGING_ERROR"
	ErrCodeConfig    ErrorCode = "CONFIG_ERROR"
)

// ErrorType 错误类型
type ErrorType int

const (
	ErrorTypeSystem ErrorType = iota
	ErrorTypeBusiness
	ErrorTypeValidation
	ErrorTypeExternal
)

// AppError 应用错误结构体
type AppError struct {
	Code     ErrorCode   `json:"code"`
	Message  string      `json:"message"`
	Type     ErrorType   `json:"type"`
	HTTPCode int         `json:"-"`
	Details  interface{} `json:"details,omitempty"`
	Cause    error       `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加错误详情
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause 添加错误原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func newError(code ErrorCode, typ ErrorType, httpCode int, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Type:     typ,
		HTTPCode: httpCode,
	}
}

// NewSystemError 创建系统错误
func NewSystemError(message string) *AppError {
	return newError(ErrCodeInternalServer, ErrorTypeSystem, http.StatusInternalServerError, message)
}

// NewValidationError 创建验证错误
func NewValidationError(message string) *AppError {
	return newError(ErrCodeValidationFailed, ErrorTypeValidation, http.StatusUnprocessableEntity, message)
}

// NewNotFoundError 创建资源未找到错误
func NewNotFoundError(resource string) *AppError {
	return newError(ErrCodeResourceNotFound, ErrorTypeBusiness, http.StatusNotFound, fmt.Sprintf("%s not found", resource))
}

// NewUnsupportedFileTypeError 上传的内容类型不在支持列表中
func NewUnsupportedFileTypeError(contentType string) *AppError {
	return newError(ErrCodeUnsupportedFileType, ErrorTypeValidation, http.StatusUnsupportedMediaType,
		fmt.Sprintf("unsupported file type: %s", contentType))
}

// NewUnsupportedFormatError 读取器与文件扩展名不匹配
func NewUnsupportedFormatError(path string) *AppError {
	return newError(ErrCodeUnsupportedFormat, ErrorTypeValidation, http.StatusUnsupportedMediaType,
		fmt.Sprintf("unsupported format: %s", path))
}

// NewUnsupportedMethodError 未知的策略名称
func NewUnsupportedMethodError(stage, name string) *AppError {
	return newError(ErrCodeUnsupportedMethod, ErrorTypeValidation, http.StatusBadRequest,
		fmt.Sprintf("unsupported %s method: %q", stage, name))
}

// NewExtractionError 文本提取失败或结果为空
func NewExtractionError(message string) *AppError {
	return newError(ErrCodeExtractionFailed, ErrorTypeBusiness, http.StatusUnprocessableEntity, message)
}

// NewEmbeddingError 向量化服务失败
func NewEmbeddingError(message string) *AppError {
	return newError(ErrCodeEmbeddingFailed, ErrorTypeExternal, http.StatusBadGateway, message)
}

// NewStorageError 对象存储失败
func NewStorageError(message string) *AppError {
	return newError(ErrCodeStorage, ErrorTypeExternal, http.StatusBadGateway, message)
}

// NewDatabaseError 元数据存储失败
func NewDatabaseError(message string) *AppError {
	return newError(ErrCodeDatabase, ErrorTypeSystem, http.StatusInternalServerError, message)
}

// NewMessagingError 消息通道失败
func NewMessagingError(message string) *AppError {
	return newError(ErrCodeMessaging, ErrorTypeExternal, http.StatusServiceUnavailable, message)
}

// NewConfigError 配置错误
func NewConfigError(message string) *AppError {
	return newError(ErrCodeConfig, ErrorTypeSystem, http.StatusInternalServerError, message)
}

// IsAppError 检查错误链中是否存在AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// HasCode 检查错误链中的AppError是否为指定错误码
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// GetAppError 获取AppError，如果不是则包装为系统错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return NewSystemError("Internal server error").WithCause(err)
}

// ErrorTypeString 错误类型的字符串形式
func ErrorTypeString(t ErrorType) string {
	switch t {
	case ErrorTypeBusiness:
		return "business"
	case ErrorTypeValidation:
		return "validation"
	case ErrorTypeExternal:
		return "external"
	default:
		return "system"
	}
}
