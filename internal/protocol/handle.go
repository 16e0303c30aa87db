package protocol

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// reservedHandleRunes break USER_LIST, recipient lists, or the MESSAGE
// sender field when they appear inside a handle. 0x2C is the comma, which
// the validator tag syntax cannot carry literally.
const reservedHandleRunes = "0x2C:[]>"

// ValidateHandle checks a trimmed candidate handle. It does not consult the
// registry; uniqueness is decided by registration alone.
func ValidateHandle(handle string, maxLen int) error {
	tag := fmt.Sprintf("required,max=%d,excludesall=%s", maxLen, reservedHandleRunes)
	if err := validate.Var(handle, tag); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHandle, err)
	}
	if strings.IndexFunc(handle, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) >= 0 {
		return fmt.Errorf("%w: contains whitespace or control characters", ErrInvalidHandle)
	}
	return nil
}
