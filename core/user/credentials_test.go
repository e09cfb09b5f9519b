package user

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePassword(t *testing.T) {
	for i := 0; i < 50; i++ {
		pwd, err := GeneratePassword(GeneratedPasswordLength)
		require.NoError(t, err)
		assert.Len(t, pwd, GeneratedPasswordLength)
		assert.True(t, strings.ContainsAny(pwd, lowerChars), pwd)
		assert.True(t, strings.ContainsAny(pwd, upperChars), pwd)
		assert.True(t, strings.ContainsAny(pwd, digitChars), pwd)
		assert.True(t, strings.ContainsAny(pwd, specialChars), pwd)
	}

	pwd, err := GeneratePassword(2)
	require.NoError(t, err)
	assert.Len(t, pwd, 4)
}

func TestGenerateUsername(t *testing.T) {
	suffix := regexp.MustCompile(`_[0-9a-f]{6}$`)

	tests := []struct {
		email    string
		wantBase string
	}{
		{email: "Rahim.Uddin@example.com", wantBase: "rahim.uddin"},
		{email: "first+tag@example.com", wantBase: "firsttag"},
		{email: "o'neil_x@example.com", wantBase: "oneil_x"},
		{email: "+++@example.com", wantBase: "teacher"},
		{email: strings.Repeat("a", 70) + "@example.com", wantBase: strings.Repeat("a", 50)},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			uname, err := GenerateUsername(tt.email)
			require.NoError(t, err)
			assert.Regexp(t, suffix, uname)
			assert.Equal(t, tt.wantBase, suffix.ReplaceAllString(uname, ""))
			assert.Equal(t, strings.ToLower(uname), uname)
		})
	}
}

func TestGenerateUsername_random(t *testing.T) {
	defer func(orig func([]byte) (int, error)) { randRead = orig }(randRead)
	randRead = func(b []byte) (int, error) {
		for i := range b {
			b[i] = 0xab
		}
		return len(b), nil
	}

	uname, err := GenerateUsername("teacher@example.com")
	require.NoError(t, err)
	assert.Equal(t, "teacher_ababab", uname)
}

func TestUser_FirstName(t *testing.T) {
	assert.Equal(t, "Rina", (&User{Name: "Rina Akter", Email: "r@x.io"}).FirstName())
	assert.Equal(t, "rina", (&User{Email: "rina@x.io"}).FirstName())
}

func TestUser_CheckPassword(t *testing.T) {
	usr := User{}
	assert.Equal(t, ErrNoPassword, usr.CheckPassword(""))

	require.NoError(t, usr.SetPassword("S3cure!pass"))
	assert.NoError(t, usr.CheckPassword("S3cure!pass"))
	assert.Error(t, usr.CheckPassword("wrong"))
	assert.True(t, usr.HasPassword())
}
