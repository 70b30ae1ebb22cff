// Package validation содержит функции валидации входных данных.
package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinPasswordLength - минимальная длина пароля.
const MinPasswordLength = 8

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsValidEmail выполняет простую проверку формата адреса электронной почты.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

// NormalizeEmail приводит адрес к виду, в котором он хранится и сравнивается.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsStrongPassword проверяет минимальную длину пароля в символах.
func IsStrongPassword(password string) bool {
	return utf8.RuneCountInString(password) >= MinPasswordLength
}

// IsValidOTP проверяет, что код состоит ровно из length десятичных цифр.
func IsValidOTP(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// IsValidOrderNumber проверяет формат номера заказа: префикс CMD- и символы base36 в верхнем регистре.
func IsValidOrderNumber(number string) bool {
	rest, ok := strings.CutPrefix(number, "CMD-")
	if !ok || rest == "" {
		return false
	}
	for i := 0; i < len(rest); i++ {
		ch := rest[i]
		if (ch < '0' || ch > '9') && (ch < 'A' || ch > 'Z') {
			return false
		}
	}
	return true
}
