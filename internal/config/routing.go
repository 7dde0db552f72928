package config

import (
	"fmt"
	"sort"
)

// InternalChannelMap maps each request channel to the internal channel its
// requests are forwarded to.
func (c *Config) InternalChannelMap() map[string]string {
	m := make(map[string]string, len(c.Request.Channels))
	for i, id := range c.Request.Channels {
		if i < len(c.Request.InternalChannels) && c.Request.InternalChannels[i] != "" {
			m[id] = c.Request.InternalChannels[i]
		}
	}
	return m
}

// RequestLimitMap maps each request channel to its per-user daily request limit.
// Channels without a configured limit are absent.
func (c *Config) RequestLimitMap() map[string]int {
	m := make(map[string]int, len(c.Request.RequestLimits))
	for i, id := range c.Request.Channels {
		if i < len(c.Request.RequestLimits) {
			m[id] = c.Request.RequestLimits[i]
		}
	}
	return m
}

// InternalProgressChannels returns the distinct internal channel IDs.
func (c *Config) InternalProgressChannels() []string {
	seen := make(map[string]bool, len(c.Request.InternalChannels))
	var ids []string
	for _, id := range c.Request.InternalChannels {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// Overlaps describes every channel configured under more than one routing
// category. Such configs still load; routing precedence decides the winner.
func (c *Config) Overlaps() []string {
	roles := make(map[string][]string)
	add := func(role string, ids []string) {
		seen := make(map[string]bool)
		for _, id := range ids {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			roles[id] = append(roles[id], role)
		}
	}
	add("request", c.Request.Channels)
	add("testing_request", c.Request.TestingRequestChannels)
	add("internal_progress", c.InternalProgressChannels())
	if c.Modmail.Channel != "" {
		add("modmail", []string{c.Modmail.Channel})
	}

	var out []string
	for id, rs := range roles {
		if len(rs) > 1 {
			out = append(out, fmt.Sprintf("channel %s is configured as %v", id, rs))
		}
	}
	sort.Strings(out)
	return out
}

// Sanitize returns a copy of the config with secrets masked.
func Sanitize(cfg *Config) *Config {
	cp := *cfg
	if cp.Discord.Token != "" {
		cp.Discord.Token = maskString(cp.Discord.Token)
	}
	return &cp
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
