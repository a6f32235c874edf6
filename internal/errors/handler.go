package errors

import (
	stderrors "errors"

	"github.com/go-playground/validator/v10"
)

// Translate 将校验错误等常见错误转换为AppError，其余错误原样交给GetAppError
func Translate(err error) *AppError {
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if stderrors.As(err, &validationErrs) {
		fields := make([]string, 0, len(validationErrs))
		for _, fe := range validationErrs {
			fields = append(fields, fe.Field()+":"+fe.Tag())
		}
		return NewValidationError("request validation failed").
			WithDetails(map[string]interface{}{"fields": fields}).
			WithCause(err)
	}

	return GetAppError(err)
}

// Response 构建HTTP错误响应，返回状态码和响应体
func Response(err error) (int, map[string]interface{}) {
	appErr := Translate(err)

	body := map[string]interface{}{
		"code":    string(appErr.Code),
		"message": appErr.Message,
		"type":    ErrorTypeString(appErr.Type),
	}
	if appErr.Details != nil && shouldIncludeDetails(appErr) {
		body["details"] = appErr.Details
	}

	return appErr.HTTPCode, map[string]interface{}{
		"success": false,
		"error":   body,
	}
}

// shouldIncludeDetails 系统错误不暴露详情
func shouldIncludeDetails(appErr *AppError) bool {
	switch appErr.Type {
	case ErrorTypeValidation, ErrorTypeBusiness:
		return true
	case ErrorTypeExternal:
		// 消息通道失败时需要把已创建的文档ID返回给调用方
		return appErr.Code == ErrCodeMessaging
	default:
		return false
	}
}
