package validate_test

import (
	"testing"

	"github.com/pysugar/pulse-dashboard/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_Password(t *testing.T) {
	tests := []struct {
		name     string
		password string
		message  string
	}{
		{"too_short", "abc", "Password must be at least 8 characters"},
		{"no_upper", "abcdefg1!", "Password must contain at least one uppercase letter"},
		{"no_lower", "ABCDEFG1!", "Password must contain at least one lowercase letter"},
		{"no_digit", "Abcdefgh!", "Password must contain at least one number"},
		{"no_special", "Abcdefg12", "Password must contain at least one special character"},
		{"valid", "Abcdefg1!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&validate.Validator{}).Password("password", tt.password).Err()
			if tt.message == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.message, err.Error())
		})
	}
}

func TestValidator_ShortPasswordMentionsLength(t *testing.T) {
	err := validate.Register("ada@example.com", "abc", "Ada")
	require.Error(t, err)
	assert.Contains(t, validate.As(err).Field("password"), "at least 8 characters")
}

func TestValidator_Email(t *testing.T) {
	tests := []struct {
		email   string
		isValid bool
	}{
		{"test@example.com", true},
		{"invalid-email", false},
		{"test@", false},
		{"", false},
		{"Ada <ada@example.com>", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			v := &validate.Validator{}
			v.Email("email", tt.email)
			assert.Equal(t, !tt.isValid, v.HasErrors())
		})
	}
}

func TestRegister_NameLength(t *testing.T) {
	err := validate.Register("ada@example.com", "Abcdefg1!", "A")
	require.Error(t, err)
	assert.Equal(t, "Name must be at least 2 characters", validate.As(err).Field("name"))

	long := make([]byte, 101)
	for i := range long {
		long[i] = 'a'
	}
	err = validate.Register("ada@example.com", "Abcdefg1!", string(long))
	require.Error(t, err)
	assert.Equal(t, "Name must be at most 100 characters", validate.As(err).Field("name"))

	assert.NoError(t, validate.Register("ada@example.com", "Abcdefg1!", "Ada"))
}

func TestRegister_CollectsEveryField(t *testing.T) {
	err := validate.Register("nope", "abc", "")
	ve := validate.As(err)
	require.NotNil(t, ve)
	assert.Len(t, ve.Details, 3)
}

func TestLogin_RequiresFields(t *testing.T) {
	assert.Error(t, validate.Login("", "x"))
	assert.Error(t, validate.Login("ada@example.com", " "))
	assert.NoError(t, validate.Login("ada@example.com", "weak"))
}

func TestSocialAccount(t *testing.T) {
	assert.NoError(t, validate.SocialAccount("instagram", "ada"))
	err := validate.SocialAccount("myspace", "ada")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Must be one of")
	assert.Error(t, validate.SocialAccount("tiktok", ""))
}

func TestProfile_OnlyChecksProvidedFields(t *testing.T) {
	assert.NoError(t, validate.Profile(nil, nil))
	bad := "x"
	assert.Error(t, validate.Profile(&bad, nil))
}
