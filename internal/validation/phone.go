// Package validation содержит функции валидации входных данных.
package validation

import "unicode"

// IsValidPhoneNumber проверяет, что номер записан в формате E.164: "+" и от 8 до 15 цифр без ведущего нуля.
func IsValidPhoneNumber(number string) bool {
	if len(number) < 9 || len(number) > 16 || number[0] != '+' {
		return false
	}

	if number[1] == '0' {
		return false
	}

	for _, ch := range number[1:] {
		if !unicode.IsDigit(ch) {
			return false
		}
	}

	return true
}
