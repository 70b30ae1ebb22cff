package service

import "errors"

// ValidationError описывает некорректный ввод. Message предназначено для пользователя.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

var (
	// ErrDuplicateEmail возвращается, если email уже занят подтверждённым пользователем.
	ErrDuplicateEmail = errors.New("email already in use")
	// ErrAlreadyVerified возвращается при попытке повторно подтвердить email.
	ErrAlreadyVerified = errors.New("user already verified")
	// ErrNoPendingOTP возвращается, если у пользователя нет ожидающего кода.
	ErrNoPendingOTP = errors.New("no pending otp")
	// ErrNoResetPending возвращается, если сброс пароля не запрашивался.
	ErrNoResetPending = errors.New("no password reset pending")
	// ErrInvalidOTP возвращается при несовпадении кода.
	ErrInvalidOTP = errors.New("invalid otp")
	// ErrOTPExpired возвращается, если срок действия кода истёк.
	ErrOTPExpired = errors.New("otp expired")
	// ErrNothingToResend возвращается, если повторно отправлять нечего.
	ErrNothingToResend = errors.New("nothing to resend")
	// ErrInvalidCredentials возвращается при неверном email или пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotVerified возвращается при входе пользователя с неподтверждённым email.
	ErrNotVerified = errors.New("email not verified")
	// ErrAccountDisabled возвращается при входе заблокированного или неактивного пользователя.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrTooManyRequests возвращается, если код запрашивают слишком часто.
	ErrTooManyRequests = errors.New("too many requests")
	// ErrUpstream возвращается при сбое почтового или платёжного провайдера на критичном пути.
	ErrUpstream = errors.New("upstream failure")
	// ErrPaymentNotSucceeded возвращается, если платёж не проведён.
	ErrPaymentNotSucceeded = errors.New("payment not succeeded")
	// ErrForbidden возвращается при доступе к чужому ресурсу.
	ErrForbidden = errors.New("forbidden")
)
