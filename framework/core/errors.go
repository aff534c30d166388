// Package core предоставляет систему ошибок и базовые интерфейсы компонентов.
package core

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Kind закрытый набор видов ошибок, по которым вызывающий код принимает решения
type Kind int

const (
	// KindUnknown ошибка без вида, трактуется как KindPropagated
	KindUnknown Kind = iota
	// KindNotFound агрегат или запись отсутствует
	KindNotFound
	// KindDuplicateCreate создание с уже существующим идентификатором
	KindDuplicateCreate
	// KindConditionalWriteConflict хранилище отклонило условную запись
	KindConditionalWriteConflict
	// KindEnrichmentFailure внешний best-effort запрос не удался
	KindEnrichmentFailure
	// KindUnhandledCommand для команды не зарегистрирован обработчик
	KindUnhandledCommand
	// KindPropagated неожиданная ошибка хранилища или журнала
	KindPropagated
	// KindInvalidArgument некорректные входные данные
	KindInvalidArgument
	// KindAlreadyExists нарушение бизнес-уникальности (например email)
	KindAlreadyExists
)

// String возвращает код вида ошибки
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindDuplicateCreate:
		return "DUPLICATE_CREATE"
	case KindConditionalWriteConflict:
		return "CONDITIONAL_WRITE_CONFLICT"
	case KindEnrichmentFailure:
		return "ENRICHMENT_FAILURE"
	case KindUnhandledCommand:
		return "UNHANDLED_COMMAND"
	case KindPropagated:
		return "PROPAGATED"
	case KindInvalidArgument:
		return "INVALID_ARGUMENT"
	case KindAlreadyExists:
		return "ALREADY_EXISTS"
	default:
		return "UNKNOWN"
	}
}

// FrameworkError базовый тип ошибки
type FrameworkError struct {
	Kind       Kind
	Message    string
	Cause      error
	StackTrace string
}

// Error реализует интерфейс error
func (e *FrameworkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap возвращает причину ошибки
func (e *FrameworkError) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки по виду
func (e *FrameworkError) Is(target error) bool {
	if t, ok := target.(*FrameworkError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// WithContext добавляет контекст к сообщению
func (e *FrameworkError) WithContext(context string) *FrameworkError {
	return &FrameworkError{
		Kind:       e.Kind,
		Message:    fmt.Sprintf("%s: %s", context, e.Message),
		Cause:      e.Cause,
		StackTrace: e.StackTrace,
	}
}

// Сторожевые значения для errors.Is
var (
	ErrNotFound                 = &FrameworkError{Kind: KindNotFound, Message: "not found"}
	ErrDuplicateCreate          = &FrameworkError{Kind: KindDuplicateCreate, Message: "duplicate create"}
	ErrConditionalWriteConflict = &FrameworkError{Kind: KindConditionalWriteConflict, Message: "conditional write conflict"}
	ErrEnrichmentFailure        = &FrameworkError{Kind: KindEnrichmentFailure, Message: "enrichment failure"}
	ErrUnhandledCommand         = &FrameworkError{Kind: KindUnhandledCommand, Message: "unhandled command"}
	ErrInvalidArgument          = &FrameworkError{Kind: KindInvalidArgument, Message: "invalid argument"}
	ErrAlreadyExists            = &FrameworkError{Kind: KindAlreadyExists, Message: "already exists"}
)

// NewError создает новую ошибку заданного вида
func NewError(kind Kind, message string) *FrameworkError {
	return &FrameworkError{
		Kind:       kind,
		Message:    message,
		StackTrace: captureStackTrace(),
	}
}

// Errorf создает ошибку с форматированным сообщением
func Errorf(kind Kind, format string, args ...interface{}) *FrameworkError {
	return NewError(kind, fmt.Sprintf(format, args...))
}

// Wrap оборачивает существующую ошибку. Возвращает nil для nil.
func Wrap(err error, kind Kind, message string) error {
	if err == nil {
		return nil
	}
	return &FrameworkError{
		Kind:       kind,
		Message:    message,
		Cause:      err,
		StackTrace: captureStackTrace(),
	}
}

// KindOf возвращает вид первой FrameworkError в цепочке
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *FrameworkError
	if errors.As(err, &fe) {
		if fe.Kind == KindUnknown {
			return KindPropagated
		}
		return fe.Kind
	}
	return KindPropagated
}

// IsKind проверяет вид ошибки
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// captureStackTrace захватывает stack trace
func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	stack := string(buf[:n])

	// Первые строки относятся к самой captureStackTrace
	lines := strings.Split(stack, "\n")
	if len(lines) > 4 {
		lines = lines[4:]
	}
	return strings.Join(lines, "\n")
}
