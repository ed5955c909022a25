package core

import "errors"

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）、模块（Module）和消息（Message）
//   - 可选包装底层错误（Err），支持 errors.Is / errors.As
//
// CF 核心中的错误大多是"软失败"：
//   - DATA_UNAVAILABLE：数据集/元数据不可读，降级为空结构
//   - INSUFFICIENT_SUPPORT：共同评分数不足，结果未定义
//   - NO_PREDICTION：无正相似邻居或分母为零，推荐层回退热门
//   - CACHE_INVALID：缓存缺失/损坏/超参数不匹配，触发重建
//   - PERSISTENCE_FAILURE：缓存或本地存储写入失败，继续使用内存状态
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "NO_PREDICTION"）
	Message string // 错误消息
	Module  string // 模块名称（如 "store", "recall"）
	Err     error  // 底层错误（可选）
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is 按 Module + Code 比较，使 errors.Is(err, ErrNoPrediction) 对包装后的错误同样成立。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Module == t.Module && e.Code == t.Code
}

// IsDomainError 检查错误是否为 DomainError 类型
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取 DomainError，如果不是则返回 nil
func GetDomainError(err error) *DomainError {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// WrapDomainError 创建包装底层错误的领域错误
func WrapDomainError(module, code, message string, err error) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// 错误代码常量
const (
	// 通用错误代码
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在
	ErrorCodeNotSupported  = "NOT_SUPPORTED"  // 操作不支持
	ErrorCodeUnavailable   = "UNAVAILABLE"    // 服务不可用
	ErrorCodeInvalidInput  = "INVALID_INPUT"  // 输入无效
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部错误

	// 协同过滤相关
	ErrorCodeDataUnavailable     = "DATA_UNAVAILABLE"     // 数据集不可读
	ErrorCodeInsufficientSupport = "INSUFFICIENT_SUPPORT" // 共同评分数不足
	ErrorCodeNoPrediction        = "NO_PREDICTION"        // 无法预测
	ErrorCodeCacheInvalid        = "CACHE_INVALID"        // 缓存无效
	ErrorCodePersistenceFailure  = "PERSISTENCE_FAILURE"  // 持久化失败
)

// 模块名称常量
const (
	ModuleStore      = "store"      // 存储模块
	ModuleDataset    = "dataset"    // 评分数据集
	ModuleSimilarity = "similarity" // 相似度计算
	ModuleCache      = "simcache"   // 相似度缓存
	ModuleRecall     = "recall"     // 协同过滤引擎
	ModuleLocal      = "localstore" // 本地用户评分
)

// 常用错误
var (
	// ErrNoPrediction 表示无法给出预测（无正相似邻居 / 分母为零 / 空评分）
	ErrNoPrediction = NewDomainError(ModuleRecall, ErrorCodeNoPrediction, "recall: no prediction")

	// ErrInsufficientSupport 表示共同评分用户（或物品）数量不足
	ErrInsufficientSupport = NewDomainError(ModuleSimilarity, ErrorCodeInsufficientSupport, "similarity: insufficient common support")

	// ErrInvalidRating 表示评分超出 [1,5]
	ErrInvalidRating = NewDomainError(ModuleLocal, ErrorCodeInvalidInput, "localstore: rating must be within [1,5]")
)

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsNotSupported 检查错误是否为 NOT_SUPPORTED
func IsNotSupported(err error) bool { return hasCode(err, ErrorCodeNotSupported) }

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool { return hasCode(err, ErrorCodeUnavailable) }

// IsInvalidInput 检查错误是否为 INVALID_INPUT
func IsInvalidInput(err error) bool { return hasCode(err, ErrorCodeInvalidInput) }

// IsDataUnavailable 检查错误是否为 DATA_UNAVAILABLE
func IsDataUnavailable(err error) bool { return hasCode(err, ErrorCodeDataUnavailable) }

// IsInsufficientSupport 检查错误是否为 INSUFFICIENT_SUPPORT
func IsInsufficientSupport(err error) bool { return hasCode(err, ErrorCodeInsufficientSupport) }

// IsNoPrediction 检查错误是否为 NO_PREDICTION
func IsNoPrediction(err error) bool { return hasCode(err, ErrorCodeNoPrediction) }

// IsCacheInvalid 检查错误是否为 CACHE_INVALID
func IsCacheInvalid(err error) bool { return hasCode(err, ErrorCodeCacheInvalid) }

// IsPersistenceFailure 检查错误是否为 PERSISTENCE_FAILURE
func IsPersistenceFailure(err error) bool { return hasCode(err, ErrorCodePersistenceFailure) }
