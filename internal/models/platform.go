package models

// Platform identifies one of the supported social networks. Dispatch binds
// each value to a publisher implementation through a registry, so adding a
// network means adding a constant and an adapter, not editing a switch.
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformTwitter   Platform = "twitter"
	PlatformTiktok    Platform = "tiktok"
	PlatformYoutube   Platform = "youtube"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformFacebook, PlatformInstagram, PlatformTwitter, PlatformTiktok, PlatformYoutube:
		return true
	}
	return false
}

// RequiresMedia reports whether the network rejects text-only posts.
func (p Platform) RequiresMedia() bool {
	switch p {
	case PlatformInstagram, PlatformTiktok, PlatformYoutube:
		return true
	}
	return false
}

// SingleVideoOnly reports whether the network accepts at most one video per post.
func (p Platform) SingleVideoOnly() bool {
	return p == PlatformTiktok || p == PlatformYoutube
}
