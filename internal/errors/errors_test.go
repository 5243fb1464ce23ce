package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite 错误包测试套件
type ErrorsTestSuite struct {
	suite.Suite
}

// 测试创建新错误
func (suite *ErrorsTestSuite) TestNew() {
	err := New(ErrInvalidAmount)
	suite.NotNil(err)
	suite.Equal(ErrInvalidAmount, err.Code)
	suite.Equal("无效的金额", err.Message)
	suite.Empty(err.Details)

	// 带详情
	err = New(ErrInsufficientCoins, "需要 500 金币")
	suite.Equal(ErrInsufficientCoins, err.Code)
	suite.Equal("金币不足", err.Message)
	suite.Equal("需要 500 金币", err.Details)

	// 多个详情
	err = New(ErrDatabaseConnect, "连接失败", "driver: sqlite")
	suite.Equal("连接失败; driver: sqlite", err.Details)

	// 未知错误码回退到通用消息
	err = New(ErrorCode(99999))
	suite.Equal("未知错误", err.Message)
}

// 测试格式化错误创建
func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrInvalidAmount, "金额 %d 必须为正数", -5)
	suite.Equal(ErrInvalidAmount, err.Code)
	suite.Equal("金额 -5 必须为正数", err.Details)
}

// 测试错误包装
func (suite *ErrorsTestSuite) TestWrap() {
	originalErr := errors.New("原始错误")
	wrappedErr := Wrap(originalErr, ErrDatabaseQuery)
	suite.NotNil(wrappedErr)
	suite.Equal(ErrDatabaseQuery, wrappedErr.Code)
	suite.Equal("原始错误", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)

	// nil错误返回nil
	suite.Nil(Wrap(nil, ErrUnknown))
}

// 测试Error输出格式
func (suite *ErrorsTestSuite) TestErrorString() {
	err := New(ErrTargetProtected)
	suite.Equal("[3002] 目标处于保护中", err.Error())

	err = New(ErrTargetProtected, "剩余 3 小时")
	suite.Equal("[3002] 目标处于保护中: 剩余 3 小时", err.Error())
}

// 测试Unwrap链
func (suite *ErrorsTestSuite) TestUnwrap() {
	cause := errors.New("底层错误")
	err := Wrap(cause, ErrStoreUnavailable)
	suite.True(errors.Is(err, cause))
}

// 测试错误码判断
func (suite *ErrorsTestSuite) TestIs() {
	err := New(ErrDailyClaimed)
	suite.True(Is(err, ErrDailyClaimed))
	suite.False(Is(err, ErrInsufficientCoins))
	suite.False(Is(errors.New("plain"), ErrDailyClaimed))
}

// 测试错误分类
func (suite *ErrorsTestSuite) TestCategories() {
	suite.True(IsValidation(New(ErrMissingTarget)))
	suite.True(IsValidation(New(ErrInvalidAmount)))
	suite.False(IsValidation(New(ErrDailyClaimed)))

	suite.True(IsPrecondition(New(ErrInsufficientCoins)))
	suite.True(IsPrecondition(New(ErrTargetProtected)))
	suite.False(IsPrecondition(New(ErrStoreTimeout)))

	suite.True(IsRetryable(New(ErrStoreUnavailable)))
	suite.True(IsRetryable(New(ErrStoreConflict)))
	suite.False(IsRetryable(New(ErrNotifyFailed)))
}

// 测试错误码提取
func (suite *ErrorsTestSuite) TestCodeOf() {
	suite.Equal(ErrStoreConflict, CodeOf(New(ErrStoreConflict)))
	suite.Equal(ErrUnknown, CodeOf(errors.New("plain")))
}

// 测试调用栈采集
func (suite *ErrorsTestSuite) TestWithStack() {
	err := New(ErrTransaction).WithStack()
	suite.NotEmpty(err.Stack)
}

func TestErrorsSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}
