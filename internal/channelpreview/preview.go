package channelpreview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultBaseURL = "https://t.me"
	userAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	cacheTTL       = 10 * time.Minute
)

var (
	ErrInvalidUsername = errors.New("invalid channel username")
	ErrNotFound        = errors.New("channel not found")

	usernameRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{3,31}$`)
)

// Preview is what the join-channel prompt shows next to the subscription check.
type Preview struct {
	Username    string    `json:"username"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Subscribers *int      `json:"subscribers,omitempty"`
	Verified    bool      `json:"verified"`
	LangGuess   string    `json:"lang_guess"`
	FetchedAt   time.Time `json:"fetched_at"`
}

type cached struct {
	preview *Preview
	at      time.Time
}

// Parser scrapes the public web preview of a channel (t.me/s/<username>).
type Parser struct {
	baseURL    string
	httpClient *http.Client
	maxRetries uint64
	log        *zap.Logger

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]cached
}

func NewParser(timeout time.Duration, maxRetries int, log *zap.Logger) *Parser {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Parser{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: uint64(maxRetries),
		log:        log,
		cache:      make(map[string]cached),
	}
}

func NormalizeUsername(username string) (string, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if !usernameRE.MatchString(username) {
		return "", ErrInvalidUsername
	}
	return strings.ToLower(username), nil
}

// FetchPreview returns the channel preview, served from a short-lived cache
// when possible. Concurrent requests for one channel share a fetch.
func (p *Parser) FetchPreview(ctx context.Context, username string) (*Preview, error) {
	username, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if c, ok := p.cache[username]; ok && time.Since(c.at) < cacheTTL {
		p.mu.Unlock()
		return c.preview, nil
	}
	p.mu.Unlock()

	v, err, _ := p.group.Do(username, func() (any, error) {
		preview, err := p.fetch(ctx, username)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.cache[username] = cached{preview: preview, at: time.Now()}
		p.mu.Unlock()
		return preview, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Preview), nil
}

func (p *Parser) fetch(ctx context.Context, username string) (*Preview, error) {
	url := fmt.Sprintf("%s/s/%s", p.baseURL, username)

	var doc *goquery.Document
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(ErrNotFound)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
		}

		doc, err = goquery.NewDocumentFromReader(resp.Body)
		return err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(backoff.WithInitialInterval(500*time.Millisecond)), p.maxRetries),
		ctx,
	)
	err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		p.log.Debug("channel preview fetch retry", zap.String("username", username), zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		return nil, err
	}

	return parseDocument(doc, username)
}

func parseDocument(doc *goquery.Document, username string) (*Preview, error) {
	header := doc.Find(".tgme_channel_info")
	if header.Length() == 0 {
		// t.me/s/ redirects private chats and bots to a page without channel info
		return nil, ErrNotFound
	}

	preview := &Preview{
		Username:  username,
		URL:       defaultBaseURL + "/" + username,
		Title:     strings.TrimSpace(header.Find(".tgme_channel_info_header_title").First().Text()),
		FetchedAt: time.Now(),
	}
	preview.Description = strings.TrimSpace(header.Find(".tgme_channel_info_description").First().Text())
	if src, ok := header.Find(".tgme_page_photo_image img").First().Attr("src"); ok {
		preview.AvatarURL = src
	}

	header.Find(".tgme_channel_info_counter").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		label := strings.ToLower(strings.TrimSpace(s.Find(".counter_type").Text()))
		if strings.Contains(label, "subscriber") || strings.Contains(label, "member") {
			if n := parseCount(s.Find(".counter_value").Text()); n > 0 {
				preview.Subscribers = &n
				return false
			}
		}
		return true
	})

	preview.Verified = header.Find(".tgme_channel_info_header_title .verified-icon").Length() > 0

	var text strings.Builder
	doc.Find(".tgme_widget_message_text").Each(func(_ int, s *goquery.Selection) {
		text.WriteString(s.Text())
		text.WriteString(" ")
	})
	text.WriteString(preview.Description)
	preview.LangGuess = guessLanguage(text.String())

	return preview, nil
}

var countRE = regexp.MustCompile(`[\d.]+[KkMm]?`)

// parseCount reads counters like "12 345", "1.2K" or "3.4M".
func parseCount(text string) int {
	text = strings.ReplaceAll(text, " ", "")
	text = strings.ReplaceAll(text, ",", "")

	match := countRE.FindString(text)
	if match == "" {
		return 0
	}

	multiplier := 1.0
	switch match[len(match)-1] {
	case 'K', 'k':
		multiplier = 1e3
		match = match[:len(match)-1]
	case 'M', 'm':
		multiplier = 1e6
		match = match[:len(match)-1]
	}

	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}
	return int(f*multiplier + 0.5)
}

func guessLanguage(text string) string {
	var cyrillic, latin, arabic, cjk, total int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		total++
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		case unicode.Is(unicode.Latin, r):
			latin++
		case unicode.Is(unicode.Arabic, r):
			arabic++
		case unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana):
			cjk++
		}
	}
	if total == 0 {
		return "unknown"
	}

	share := func(n int) float64 { return float64(n) / float64(total) }
	switch {
	case share(cyrillic) >= 0.3:
		return "ru"
	case share(arabic) >= 0.3:
		return "ar"
	case share(cjk) >= 0.3:
		return "zh"
	case share(latin) >= 0.3:
		return "en"
	default:
		return "other"
	}
}
