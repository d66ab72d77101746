// Package cookies loads upstream session cookies from Netscape cookies.txt
// exports, the format browser extensions and yt-dlp produce.
package cookies

import (
	"bufio"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// ParseNetscape parses a Netscape cookies.txt stream.
// Line format: domain flag path secure expiration name value
func ParseNetscape(r io.Reader) ([]*http.Cookie, error) {
	var cookies []*http.Cookie
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, "\t")
		if len(parts) < 7 {
			continue
		}

		expiresUnix, _ := strconv.ParseInt(parts[4], 10, 64)
		cookies = append(cookies, &http.Cookie{
			Domain:  parts[0],
			Path:    parts[2],
			Secure:  strings.EqualFold(parts[3], "TRUE"),
			Expires: time.Unix(expiresUnix, 0),
			Name:    parts[5],
			Value:   parts[6],
		})
	}

	return cookies, scanner.Err()
}

// HeaderValue flattens cookies for the given domain suffix into a Cookie
// header value. Expired cookies are skipped.
func HeaderValue(cookies []*http.Cookie, domainSuffix string, now time.Time) string {
	var b strings.Builder
	for _, c := range cookies {
		if domainSuffix != "" && !matchDomain(c.Domain, domainSuffix) {
			continue
		}
		if !c.Expires.IsZero() && c.Expires.Unix() > 0 && c.Expires.Before(now) {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		b.WriteString(c.Name)
		b.WriteByte('=')
		b.WriteString(c.Value)
	}
	return b.String()
}

// LoadHeaderValue reads a cookies.txt file and returns the Cookie header value
// for the given domain suffix.
func LoadHeaderValue(path, domainSuffix string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	parsed, err := ParseNetscape(f)
	if err != nil {
		return "", err
	}
	return HeaderValue(parsed, domainSuffix, time.Now()), nil
}

func matchDomain(cookieDomain, suffix string) bool {
	d := strings.TrimPrefix(strings.ToLower(cookieDomain), ".")
	s := strings.TrimPrefix(strings.ToLower(suffix), ".")
	return d == s || strings.HasSuffix(d, "."+s) || strings.HasSuffix(s, "."+d)
}
