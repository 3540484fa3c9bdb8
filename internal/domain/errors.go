package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition     = errors.New("invalid voice state transition")
	ErrNoSpeechCaptured      = errors.New("no speech captured")
	ErrRecognizerUnavailable = errors.New("speech recognizer unavailable")
	ErrUnknownCounter        = errors.New("unknown usage counter")
	ErrEmptyQuery            = errors.New("empty lookup query")
	ErrEmptyImage            = errors.New("empty image")
	ErrNotReady              = errors.New("application is not initialized")
)

// ViolationReason explains why a model response broke the line contract.
type ViolationReason string

const (
	ViolationIncomplete ViolationReason = "incomplete"
	ViolationDegenerate ViolationReason = "degenerate"
)

// ContractViolation reports a structurally unusable model response.
type ContractViolation struct {
	Reason ViolationReason
	Lines  int
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("advice contract violation: %s (%d usable lines)", e.Reason, e.Lines)
}

// TransportKind is the closed set of generator failure classes.
type TransportKind string

const (
	TransportBlocked     TransportKind = "blocked"
	TransportEmpty       TransportKind = "empty"
	TransportRateLimited TransportKind = "rate_limited"
	TransportFailed      TransportKind = "transport"
)

// Subject tells whether a request carried an image or a text query.
type Subject string

const (
	SubjectImage Subject = "image"
	SubjectText  Subject = "text"
)

// TransportError is produced at the generator boundary. Err keeps the
// underlying cause for logs and is never shown to users.
type TransportError struct {
	Kind    TransportKind
	Subject Subject
	Err     error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("advice generator: %s", e.Kind)
	}
	return fmt.Sprintf("advice generator: %s: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

const (
	msgIncomplete    = "الرد من الذكاء الاصطناعي غير مكتمل. الرجاء المحاولة مرة أخرى."
	msgDegenerate    = "لم نتمكن من فهم رد الذكاء الاصطناعي. قد يكون هناك ضغط على الخدمة."
	msgRateLimited   = "يوجد ضغط على الخدمة حالياً. الرجاء الانتظار قليلاً ثم المحاولة مرة أخرى."
	msgBlockedImage  = "تم حظر الطلب لأسباب تتعلق بالسلامة. الرجاء تعديل الصورة."
	msgBlockedText   = "تم حظر الطلب لأسباب تتعلق بالسلامة. الرجاء تعديل استفسارك."
	msgNoCandidates  = "لم يتمكن الذكاء الاصطناعي من إنشاء رد. قد تكون الصورة غير واضحة."
	msgEmptyText     = "لم يتمكن الذكاء الاصطناعي من إنشاء رد. الرد المستلم كان فارغًا."
	msgTransport     = "حدث خطأ أثناء الاتصال بمساعد الذكاء الاصطناعي. الرجاء التحقق من اتصالك بالإنترنت والمحاولة مرة أخرى."
	msgEmptyQuery    = "الرجاء كتابة اسم المادة التي تبحث عنها."
	msgEmptyImage    = "لم نتمكن من قراءة الصورة. الرجاء المحاولة مرة أخرى."
	msgNoSpeech      = "لم أسمع أي شيء. هل يمكنك المحاولة مرة أخرى؟"
	msgMicDenied     = "تم رفض الوصول إلى الميكروفون. يرجى تفعيله في الإعدادات."
	msgRecognition   = "حدث خطأ أثناء التعرف على الصوت."
	msgStartFailed   = "لم نتمكن من بدء التسجيل. الرجاء المحاولة مرة أخرى."
	msgNothingSpoken = "لم يتم تسجيل أي كلام. الرجاء المحاولة مرة أخرى."
	msgUnsupported   = "عذراً، المساعد الصوتي غير مدعوم على هذا الجهاز."
)

// RecognitionMessage maps a recognizer error category to user-facing text.
func RecognitionMessage(category RecognitionErrorCategory) string {
	switch category {
	case RecognitionErrorNoSpeech:
		return msgNoSpeech
	case RecognitionErrorPermissionDenied:
		return msgMicDenied
	default:
		return msgRecognition
	}
}

// StartFailedMessage is shown when a recognition session cannot begin.
func StartFailedMessage() string { return msgStartFailed }

// NothingSpokenMessage is shown when a session is confirmed with no transcript.
func NothingSpokenMessage() string { return msgNothingSpoken }

// UnsupportedMessage is shown when no recognizer is configured.
func UnsupportedMessage() string { return msgUnsupported }

// UserMessage selects the user-facing text for any advice pipeline error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var violation *ContractViolation
	if errors.As(err, &violation) {
		if violation.Reason == ViolationDegenerate {
			return msgDegenerate
		}
		return msgIncomplete
	}

	var transport *TransportError
	if errors.As(err, &transport) {
		switch transport.Kind {
		case TransportRateLimited:
			return msgRateLimited
		case TransportBlocked:
			if transport.Subject == SubjectText {
				return msgBlockedText
			}
			return msgBlockedImage
		case TransportEmpty:
			if errors.Is(transport.Err, ErrNoCandidates) {
				return msgNoCandidates
			}
			return msgEmptyText
		default:
			return msgTransport
		}
	}

	switch {
	case errors.Is(err, ErrEmptyQuery):
		return msgEmptyQuery
	case errors.Is(err, ErrEmptyImage):
		return msgEmptyImage
	case errors.Is(err, ErrNoSpeechCaptured):
		return msgNothingSpoken
	case errors.Is(err, ErrRecognizerUnavailable):
		return msgUnsupported
	}
	return msgTransport
}

// ErrNoCandidates marks an empty response that carried no candidates at all.
var ErrNoCandidates = errors.New("model returned no candidates")
