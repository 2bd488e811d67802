// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ytdlp builds yt-dlp invocations for acquisition jobs.
package ytdlp

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Mode selects output template, format flags and post-processing.
type Mode string

const (
	ModeVideo Mode = "video"
	ModeAudio Mode = "audio"
)

// ParseMode accepts "video", "audio" or an empty string (video).
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeVideo:
		return ModeVideo, nil
	case ModeAudio:
		return ModeAudio, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Ext is the container extension the downloader is asked to produce.
func (m Mode) Ext() string {
	if m == ModeAudio {
		return "mp3"
	}
	return "mp4"
}

const (
	DefaultBin          = "yt-dlp"
	DefaultSearchPrefix = "ytsearch1:"
	// searchDomain keys cookie and identity lookup for search queries.
	searchDomain = "youtube.com"
)

// CookieRule maps a source domain to a cookie-jar file.
type CookieRule struct {
	Domain string `yaml:"domain"`
	File   string `yaml:"file"`
}

// IdentityRule maps a source domain to browser-identity headers.
type IdentityRule struct {
	Domain    string `yaml:"domain"`
	UserAgent string `yaml:"userAgent"`
	Referer   string `yaml:"referer"`
}

// DefaultCookies returns the stock cookie profiles.
func DefaultCookies() []CookieRule {
	return []CookieRule{
		{Domain: "instagram.com", File: "./cookie_instagram.txt"},
		{Domain: "youtube.com", File: "./cookie_youtube.txt"},
		{Domain: "youtu.be", File: "./cookie_youtube.txt"},
	}
}

// DefaultIdentities returns the stock identity headers.
func DefaultIdentities() []IdentityRule {
	return []IdentityRule{{
		Domain: "instagram.com",
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) " +
			"AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1",
		Referer: "https://www.instagram.com/",
	}}
}

// Builder turns a request into a downloader command line.
type Builder struct {
	Bin          string
	WorkDir      string
	SearchPrefix string
	Cookies      []CookieRule
	Identities   []IdentityRule

	// FileExists reports whether a cookie file is present. Nil uses os.Stat.
	FileExists func(path string) bool
}

// Request is the job-level input of Build.
type Request struct {
	ID     string
	Source string
	Mode   Mode
}

// Command is a fully built invocation.
type Command struct {
	Bin          string
	Args         []string
	ExpectedPath string
	// CookieFile is the cookie profile passed to the downloader, if any.
	CookieFile string
	// MissingCookieFile is set when a rule matched but its file is absent.
	MissingCookieFile string
	Search            bool
}

// Build assembles the invocation for req.
func (b *Builder) Build(req Request) Command {
	bin := b.Bin
	if bin == "" {
		bin = DefaultBin
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeVideo
	}

	target, host, search := b.target(req.Source)
	cmd := Command{
		Bin:          bin,
		ExpectedPath: filepath.Join(b.WorkDir, req.ID+"."+mode.Ext()),
		Search:       search,
	}

	var args []string
	if rule, ok := matchCookie(b.Cookies, host); ok {
		if b.exists(rule.File) {
			cmd.CookieFile = rule.File
			args = append(args, "--cookies", rule.File)
		} else {
			cmd.MissingCookieFile = rule.File
		}
	}

	switch mode {
	case ModeAudio:
		args = append(args,
			"-f", "bestaudio/best",
			"-x", "--audio-format", "mp3", "--audio-quality", "0",
			"--no-playlist", "--newline",
			"-o", filepath.Join(b.WorkDir, req.ID+".%(ext)s"),
		)
	default:
		args = append(args,
			"-f", "bestvideo+bestaudio/best",
			"--merge-output-format", "mp4",
			"--no-playlist", "--newline",
			"-o", cmd.ExpectedPath,
		)
	}

	if id, ok := matchIdentity(b.Identities, host); ok {
		if id.UserAgent != "" {
			args = append(args, "--user-agent", id.UserAgent)
		}
		if id.Referer != "" {
			args = append(args, "--referer", id.Referer)
		}
	}

	// "--" keeps a query starting with "-" from being parsed as a flag.
	args = append(args, "--", target)
	cmd.Args = args
	return cmd
}

func (b *Builder) target(source string) (target, host string, search bool) {
	source = strings.TrimSpace(source)
	if u, err := url.Parse(source); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return source, strings.ToLower(u.Hostname()), false
	}
	prefix := b.SearchPrefix
	if prefix == "" {
		prefix = DefaultSearchPrefix
	}
	return prefix + source, searchDomain, true
}

func (b *Builder) exists(path string) bool {
	if b.FileExists != nil {
		return b.FileExists(path)
	}
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

// IsURL reports whether source is treated as a direct URL rather than a search.
func IsURL(source string) bool {
	_, _, search := (&Builder{}).target(source)
	return !search
}

func hostMatches(host, domain string) bool {
	domain = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "."))
	if domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func matchCookie(rules []CookieRule, host string) (CookieRule, bool) {
	for _, r := range rules {
		if hostMatches(host, r.Domain) {
			return r, true
		}
	}
	return CookieRule{}, false
}

func matchIdentity(rules []IdentityRule, host string) (IdentityRule, bool) {
	for _, r := range rules {
		if hostMatches(host, r.Domain) {
			return r, true
		}
	}
	return IdentityRule{}, false
}
