package twitch

import (
	"context"
	"log/slog"
	"strings"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
)

const (
	clipFailedMessage = "Couldn't create clip at the moment, try again later."
	editURLSuffix     = "/edit"
)

type broadcasterResolver interface {
	BroadcasterID(ctx context.Context, channel string) (string, error)
}

// Clips creates clips and announces the result in the requesting channel.
type Clips struct {
	gateway   Gateway
	resolver  broadcasterResolver
	announcer domain.Announcer
}

func NewClips(gateway Gateway, resolver broadcasterResolver, announcer domain.Announcer) *Clips {
	return &Clips{gateway: gateway, resolver: resolver, announcer: announcer}
}

func (c *Clips) CreateClip(ctx context.Context, channel string) error {
	url, err := c.create(ctx, channel)
	if err != nil {
		slog.ErrorContext(ctx, "Clip creation failed", "channel", channel, "error", err)
		c.announcer.Announce(ctx, channel, clipFailedMessage)
		return nil
	}

	slog.InfoContext(ctx, "Clip created", "channel", channel, "url", url)
	c.announcer.Announce(ctx, channel, "Clip created! "+url)
	return nil
}

func (c *Clips) create(ctx context.Context, channel string) (string, error) {
	broadcasterID, err := c.resolver.BroadcasterID(ctx, channel)
	if err != nil {
		return "", err
	}
	_, editURL, err := c.gateway.CreateClip(ctx, broadcasterID)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(editURL, editURLSuffix), nil
}
