package user

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

const (
	GeneratedPasswordLength = 12
	usernameMaxBase         = 50
	usernameSuffixBytes     = 3

	lowerChars   = "abcdefghijklmnopqrstuvwxyz"
	upperChars   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars   = "0123456789"
	specialChars = "!@#$%^&*"
)

var usernameStripRegex = regexp.MustCompile(`[^a-zA-Z0-9._]`)

// randRead is crypto/rand.Reader's Read, swapped in tests.
var randRead = rand.Read // mockable

func randIndex(n int) (int, error) {
	i, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, errors.Wrap(err, "reading random")
	}
	return int(i.Int64()), nil
}

// GeneratePassword returns a random password of length characters (at least 4) holding at
// least one lowercase, one uppercase, one digit and one special character.
func GeneratePassword(length int) (string, error) {
	if length < 4 {
		length = 4
	}
	classes := []string{lowerChars, upperChars, digitChars, specialChars}
	all := strings.Join(classes, "")

	pwd := make([]byte, 0, length)
	for _, class := range classes {
		i, err := randIndex(len(class))
		if err != nil {
			return "", err
		}
		pwd = append(pwd, class[i])
	}
	for len(pwd) < length {
		i, err := randIndex(len(all))
		if err != nil {
			return "", err
		}
		pwd = append(pwd, all[i])
	}

	// Fisher-Yates
	for i := len(pwd) - 1; i > 0; i-- {
		j, err := randIndex(i + 1)
		if err != nil {
			return "", err
		}
		pwd[i], pwd[j] = pwd[j], pwd[i]
	}
	return string(pwd), nil
}

// GenerateUsername derives a username from the email's local part plus a random hex suffix.
func GenerateUsername(email string) (string, error) {
	local := email
	if at := strings.Index(email, "@"); at >= 0 {
		local = email[:at]
	}
	base := usernameStripRegex.ReplaceAllString(local, "")
	if len(base) > usernameMaxBase {
		base = base[:usernameMaxBase]
	}
	if base == "" {
		base = "teacher"
	}

	suffix := make([]byte, usernameSuffixBytes)
	if _, err := randRead(suffix); err != nil {
		return "", errors.Wrap(err, "reading random")
	}
	return strings.ToLower(base + "_" + hex.EncodeToString(suffix)), nil
}

func displayName(name, email string) string {
	if fields := strings.Fields(name); len(fields) > 0 {
		return fields[0]
	}
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
