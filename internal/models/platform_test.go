package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlatformValid(t *testing.T) {
	assert.True(t, PlatformInstagram.Valid())
	assert.True(t, PlatformYoutube.Valid())
	assert.False(t, Platform("myspace").Valid())
	assert.False(t, Platform("").Valid())
}

func TestPlatformMediaRules(t *testing.T) {
	assert.True(t, PlatformInstagram.RequiresMedia())
	assert.True(t, PlatformTiktok.RequiresMedia())
	assert.True(t, PlatformYoutube.RequiresMedia())
	assert.False(t, PlatformTwitter.RequiresMedia())
	assert.False(t, PlatformFacebook.RequiresMedia())

	assert.True(t, PlatformTiktok.SingleVideoOnly())
	assert.True(t, PlatformYoutube.SingleVideoOnly())
	assert.False(t, PlatformInstagram.SingleVideoOnly())
}

func TestProfileTokenExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	nonExpiring := &Profile{}
	assert.False(t, nonExpiring.TokenExpired(now))
	assert.False(t, nonExpiring.TokenExpiresWithin(now, 24*time.Hour))

	past := now.Add(-time.Minute)
	expired := &Profile{TokenExpiresAt: &past}
	assert.True(t, expired.TokenExpired(now))
	assert.False(t, expired.TokenExpiresWithin(now, 24*time.Hour))

	soon := now.Add(10 * time.Hour)
	expiring := &Profile{TokenExpiresAt: &soon}
	assert.False(t, expiring.TokenExpired(now))
	assert.True(t, expiring.TokenExpiresWithin(now, 24*time.Hour))

	far := now.Add(48 * time.Hour)
	healthy := &Profile{TokenExpiresAt: &far}
	assert.False(t, healthy.TokenExpired(now))
	assert.False(t, healthy.TokenExpiresWithin(now, 24*time.Hour))
}
