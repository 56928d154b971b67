package channel

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Directory maps human-readable names to platform IDs for users and channels.
// It must be created via NewDirectory and passed explicitly to components that need it.
type Directory struct {
	mu           sync.RWMutex
	userByName   map[string]string
	nameByUser   map[string]string
	channelByKey map[string]string
	nameByChan   map[string]string
	free         map[string]struct{}
}

// RosterEntry is one named user.
type RosterEntry struct {
	Name   string
	UserID string
}

// NewDirectory creates a Directory. free may list channel names or IDs.
// A user ID listed under two names is rejected, since mention translation needs one alias per ID.
func NewDirectory(users, channels map[string]string, free []string) (*Directory, error) {
	d := &Directory{
		userByName:   map[string]string{},
		nameByUser:   map[string]string{},
		channelByKey: map[string]string{},
		nameByChan:   map[string]string{},
		free:         map[string]struct{}{},
	}
	for name, id := range users {
		if err := d.AddUser(name, id); err != nil {
			return nil, err
		}
	}
	for name, id := range channels {
		name = strings.TrimSpace(name)
		id = strings.TrimSpace(id)
		if name == "" || id == "" {
			return nil, fmt.Errorf("channel entry %q requires a name and id", name)
		}
		d.channelByKey[name] = id
		d.nameByChan[id] = name
	}
	for _, key := range free {
		d.free[d.ChannelID(key)] = struct{}{}
	}
	return d, nil
}

// AddUser registers a name for a user ID. Re-adding the same pair is a no-op.
func (d *Directory) AddUser(name, userID string) error {
	name = strings.TrimSpace(name)
	userID = strings.TrimSpace(userID)
	if name == "" || userID == "" {
		return fmt.Errorf("user entry %q requires a name and id", name)
	}
	if strings.ContainsAny(name, "<>|") {
		return fmt.Errorf("user name %q must not contain <, > or |", name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.nameByUser[userID]; ok && existing != name {
		return fmt.Errorf("user id %s already registered as %q", userID, existing)
	}
	if existing, ok := d.userByName[name]; ok && existing != userID {
		return fmt.Errorf("user name %q already registered as %s", name, existing)
	}
	d.userByName[name] = userID
	d.nameByUser[userID] = name
	return nil
}

// NameFor returns the alias for a user ID.
func (d *Directory) NameFor(userID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.nameByUser[userID]
	return name, ok
}

// DisplayName returns the alias for a user ID, falling back to the raw ID.
func (d *Directory) DisplayName(userID string) string {
	if name, ok := d.NameFor(userID); ok {
		return name
	}
	if strings.TrimSpace(userID) == "" {
		return "unknown"
	}
	return userID
}

// UserID returns the ID registered for an alias.
func (d *Directory) UserID(name string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.userByName[name]
	return id, ok
}

// Roster lists all named users sorted by name.
func (d *Directory) Roster() []RosterEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	items := make([]RosterEntry, 0, len(d.userByName))
	for name, id := range d.userByName {
		items = append(items, RosterEntry{Name: name, UserID: id})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}

// ChannelID resolves a channel name to its ID. Unknown keys are returned unchanged.
func (d *Directory) ChannelID(key string) string {
	key = strings.TrimSpace(key)
	d.mu.RLock()
	defer d.mu.RUnlock()
	if id, ok := d.channelByKey[key]; ok {
		return id
	}
	return key
}

// ChannelName returns the configured name of a channel, or the ID itself.
func (d *Directory) ChannelName(channelID string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if name, ok := d.nameByChan[channelID]; ok {
		return name
	}
	return channelID
}

// IsKnownChannel reports whether the channel is configured.
func (d *Directory) IsKnownChannel(channelID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.nameByChan[channelID]
	return ok
}

// IsFreeChannel reports whether unprompted replies are allowed in the channel.
func (d *Directory) IsFreeChannel(channelID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.free[channelID]
	return ok
}

var (
	nativeMentionPattern = regexp.MustCompile(`<@([UW][A-Z0-9]+)(?:\|[^<>]*)?>`)
	aliasMentionPattern  = regexp.MustCompile(`<@([^<>|]+)>`)
)

// ToAlias rewrites native mentions of known users into alias form. Unknown IDs are kept.
func (d *Directory) ToAlias(text string) string {
	if !strings.Contains(text, "<@") {
		return text
	}
	return nativeMentionPattern.ReplaceAllStringFunc(text, func(token string) string {
		id := nativeMentionPattern.FindStringSubmatch(token)[1]
		if name, ok := d.NameFor(id); ok {
			return "<@" + name + ">"
		}
		return token
	})
}

// ToNative rewrites alias mentions of known names into native form. Unknown names are kept.
func (d *Directory) ToNative(text string) string {
	if !strings.Contains(text, "<@") {
		return text
	}
	return aliasMentionPattern.ReplaceAllStringFunc(text, func(token string) string {
		name := aliasMentionPattern.FindStringSubmatch(token)[1]
		if id, ok := d.UserID(name); ok {
			return MentionToken(id)
		}
		return token
	})
}
