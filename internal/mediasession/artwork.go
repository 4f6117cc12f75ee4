package mediasession

import (
	"regexp"
	"strings"
)

// DefaultAlbum is shown when a track carries no album
const DefaultAlbum = "Supersonic Music"

var thumbnailSize = regexp.MustCompile(`/(default|mqdefault|hqdefault|sddefault)\.jpg`)

// ArtworkURL returns the largest available artwork for a track. Video
// platform thumbnails are upgraded to maxresdefault; an empty thumbnail
// falls back to the platform URL for trackID.
func ArtworkURL(thumbnail, trackID string) string {
	if thumbnail == "" {
		if trackID == "" {
			return ""
		}
		return "https://i.ytimg.com/vi/" + trackID + "/maxresdefault.jpg"
	}
	if strings.Contains(thumbnail, "ytimg.com") || strings.Contains(thumbnail, "youtube.com") {
		return thumbnailSize.ReplaceAllString(thumbnail, "/maxresdefault.jpg")
	}
	return thumbnail
}
