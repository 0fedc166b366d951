package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultInitDataTTL — максимальный возраст auth_date initData.
	DefaultInitDataTTL = 24 * time.Hour

	maxClockSkew = time.Minute
)

// WebAppUser is the "user" object of Telegram WebApp initData.
type WebAppUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
	PhotoURL     string `json:"photo_url,omitempty"`
}

type InitData struct {
	QueryID    string
	StartParam string
	AuthDate   time.Time
	User       WebAppUser
}

// ParseInitData validates initData from Telegram WebApp and returns its user.
// https://core.telegram.org/bots/webapps#validating-data-received-via-the-mini-app
func ParseInitData(initData, botToken string, maxAge time.Duration, now time.Time) (*InitData, error) {
	if maxAge <= 0 {
		maxAge = DefaultInitDataTTL
	}
	if botToken == "" {
		return nil, fmt.Errorf("bot token is not configured")
	}

	vals, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("invalid initData format: %w", err)
	}

	receivedHash := vals.Get("hash")
	if receivedHash == "" {
		return nil, fmt.Errorf("hash is missing from initData")
	}

	authDateUnix, err := strconv.ParseInt(vals.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("auth_date is missing or not a unix timestamp")
	}
	authDate := time.Unix(authDateUnix, 0)
	if age := now.Sub(authDate); age > maxAge {
		return nil, fmt.Errorf("initData expired: auth_date is %s old (max %s)", age.Round(time.Second), maxAge)
	}
	if authDate.After(now.Add(maxClockSkew)) {
		return nil, fmt.Errorf("auth_date is in the future")
	}

	want, err := hex.DecodeString(receivedHash)
	if err != nil {
		return nil, fmt.Errorf("invalid hash encoding")
	}
	// secret_key = HMAC-SHA256("WebAppData", bot_token)
	secretKey := hmacSHA256([]byte("WebAppData"), []byte(botToken))
	if !hmac.Equal(hmacSHA256(secretKey, []byte(dataCheckString(vals))), want) {
		return nil, fmt.Errorf("invalid hash: data integrity check failed")
	}

	out := &InitData{
		QueryID:    vals.Get("query_id"),
		StartParam: vals.Get("start_param"),
		AuthDate:   authDate,
	}
	rawUser := vals.Get("user")
	if rawUser == "" {
		return nil, fmt.Errorf("user is missing from initData")
	}
	if err := json.Unmarshal([]byte(rawUser), &out.User); err != nil {
		return nil, fmt.Errorf("invalid user object: %w", err)
	}
	if out.User.ID <= 0 {
		return nil, fmt.Errorf("user id is missing from initData")
	}
	return out, nil
}

// dataCheckString joins all fields except hash as sorted key=value lines.
func dataCheckString(vals url.Values) string {
	var pairs []string
	for key, values := range vals {
		if key == "hash" {
			continue
		}
		for _, v := range values {
			pairs = append(pairs, key+"="+v)
		}
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "\n")
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
