package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按模块分组）
const (
	// 通用错误 (1000-1999)
	ErrUnknown       ErrorCode = 1000
	ErrInvalidParam  ErrorCode = 1001
	ErrNotFound      ErrorCode = 1002
	ErrAlreadyExists ErrorCode = 1003
	ErrTimeout       ErrorCode = 1005
	ErrCanceled      ErrorCode = 1006

	// 参数校验错误 (2000-2999)：在任何读取之前拒绝
	ErrMissingTarget    ErrorCode = 2000
	ErrInvalidAmount    ErrorCode = 2001
	ErrSelfTarget       ErrorCode = 2002

	// 前置条件错误 (3000-3999)：读取后、修改前拒绝，不落库
	ErrInsufficientCoins ErrorCode = 3000
	ErrDailyClaimed      ErrorCode = 3001
	ErrTargetProtected   ErrorCode = 3002

	// 存储错误 (4000-4999)：有限重试后作为可重试失败返回
	ErrStoreUnavailable ErrorCode = 4000
	ErrStoreConflict    ErrorCode = 4001
	ErrStoreTimeout     ErrorCode = 4002

	// 通知错误 (5000-5999)：尽力而为，只记录日志，不作为主结果
	ErrNotifyFailed ErrorCode = 5000

	// 数据库错误 (6000-6999)
	ErrDatabaseConnect ErrorCode = 6000
	ErrDatabaseQuery   ErrorCode = 6001
	ErrTransaction     ErrorCode = 6002

	// 配置错误 (7000-7999)
	ErrConfigLoad     ErrorCode = 7000
	ErrConfigValidate ErrorCode = 7001

	// 安全错误 (8000-8999)
	ErrAuthentication ErrorCode = 8000
	ErrTokenExpired   ErrorCode = 8001
	ErrTokenInvalid   ErrorCode = 8002
)

// 错误码消息映射
var errorMessages = map[ErrorCode]string{
	// 通用错误
	ErrUnknown:       "未知错误",
	ErrInvalidParam:  "无效的参数",
	ErrNotFound:      "资源未找到",
	ErrAlreadyExists: "资源已存在",
	ErrTimeout:       "操作超时",
	ErrCanceled:      "操作已取消",

	// 参数校验错误
	ErrMissingTarget: "缺少目标对象",
	ErrInvalidAmount: "无效的金额",
	ErrSelfTarget:    "不能以自己为目标",

	// 前置条件错误
	ErrInsufficientCoins: "金币不足",
	ErrDailyClaimed:      "今日奖励已领取",
	ErrTargetProtected:   "目标处于保护中",

	// 存储错误
	ErrStoreUnavailable: "存储暂不可用",
	ErrStoreConflict:    "存储版本冲突",
	ErrStoreTimeout:     "存储操作超时",

	// 通知错误
	ErrNotifyFailed: "通知发送失败",

	// 数据库错误
	ErrDatabaseConnect: "数据库连接失败",
	ErrDatabaseQuery:   "数据库查询失败",
	ErrTransaction:     "事务处理失败",

	// 配置错误
	ErrConfigLoad:     "配置加载失败",
	ErrConfigValidate: "配置验证失败",

	// 安全错误
	ErrAuthentication: "认证失败",
	ErrTokenExpired:   "令牌已过期",
	ErrTokenInvalid:   "无效的令牌",
}

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`    // 错误码
	Message string       `json:"message"` // 错误消息
	Details string       `json:"details"` // 详细信息
	Cause   error        `json:"-"`       // 原始错误
	Stack   []StackFrame `json:"stack,omitempty"` // 调用栈
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 添加原因错误
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// WithStack 采集调用栈
func (e *AppError) WithStack() *AppError {
	const depth = 16
	var pcs [depth]uintptr
	n := runtime.Callers(2, pcs[:])

	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		// 跳过runtime内部帧
		if strings.Contains(frame.Function, "runtime.") {
			if !more {
				break
			}
			continue
		}
		e.Stack = append(e.Stack, StackFrame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more {
			break
		}
	}
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	return err
}

// Newf 创建带格式化详情的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装原始错误，nil错误返回nil
func Wrap(cause error, code ErrorCode, details ...string) *AppError {
	if cause == nil {
		return nil
	}
	return New(code, details...).WithCause(cause)
}

// Is 判断错误是否为指定错误码
func Is(err error, code ErrorCode) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	return appErr.Code == code
}

// CodeOf 提取错误码，非AppError返回ErrUnknown
func CodeOf(err error) ErrorCode {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrUnknown
}

// IsValidation 是否为参数校验类错误
func IsValidation(err error) bool {
	code := CodeOf(err)
	return code >= 2000 && code < 3000
}

// IsPrecondition 是否为前置条件类错误
func IsPrecondition(err error) bool {
	code := CodeOf(err)
	return code >= 3000 && code < 4000
}

// IsRetryable 是否为可重试的存储类错误
func IsRetryable(err error) bool {
	code := CodeOf(err)
	return code >= 4000 && code < 5000
}
