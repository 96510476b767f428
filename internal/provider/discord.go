// ABOUTME: Discord-backed implementation of the relay's profile provider.
// ABOUTME: Resolves bearer credentials into profiles and guild memberships.

// Package provider implements the relay's external collaborators: the
// Discord profile/guild provider and the GeoIP country resolver used to
// derive an identity's display locale.
package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/harmonia-bot/dashboard/internal/relay"
)

// guildPageLimit caps one guild listing request. Discord returns at most
// 200 guilds per page and a user account cannot exceed that.
const guildPageLimit = 200

// Discord resolves identity credentials against the Discord API. Each call
// opens a short-lived bearer session for the credential; the provider
// itself holds no per-user state.
type Discord struct {
	logger *slog.Logger
}

// NewDiscord creates a Discord profile provider.
func NewDiscord(logger *slog.Logger) *Discord {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{logger: logger.With("component", "discord-provider")}
}

var _ relay.ProfileProvider = (*Discord)(nil)

// FetchProfile resolves an opaque bearer credential into an identity
// profile.
func (d *Discord) FetchProfile(ctx context.Context, credential string) (relay.Profile, error) {
	session, err := d.session(credential)
	if err != nil {
		return relay.Profile{}, err
	}

	user, err := session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return relay.Profile{}, fmt.Errorf("fetching profile: %w", err)
	}

	name := user.GlobalName
	if name == "" {
		name = user.Username
	}
	return relay.Profile{
		ID:         user.ID,
		Name:       name,
		Avatar:     user.AvatarURL("256"),
		Credential: credential,
	}, nil
}

// FetchGroupMemberships lists the guilds the credential's user belongs to,
// with the user's permission bitmask in each. Filtering against the
// permission threshold is the relay's job, not the provider's.
func (d *Discord) FetchGroupMemberships(ctx context.Context, credential string) ([]relay.Group, error) {
	session, err := d.session(credential)
	if err != nil {
		return nil, err
	}

	guilds, err := session.UserGuilds(guildPageLimit, "", "", false, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetching guild memberships: %w", err)
	}

	groups := make([]relay.Group, 0, len(guilds))
	for _, g := range guilds {
		group := relay.Group{
			ID:          g.ID,
			Name:        g.Name,
			Permissions: g.Permissions,
		}
		if g.Icon != "" {
			group.Icon = discordgo.EndpointGuildIcon(g.ID, g.Icon)
		}
		groups = append(groups, group)
	}
	d.logger.Debug("fetched guild memberships", "count", len(groups))
	return groups, nil
}

// session builds a bearer session for one credential. discordgo sessions
// are plain REST clients until Open is called, which never happens here.
func (d *Discord) session(credential string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bearer " + credential)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	return session, nil
}
