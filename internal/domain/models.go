package domain

import (
	"image"
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultPort is the HTTP control port of BluOS streamers
const DefaultPort = 11000

// PlaybackState represents what the streamer is doing right now
type PlaybackState string

const (
	// StatePlaying indicates the device is playing a track or a stream
	StatePlaying PlaybackState = "playing"
	// StateBuffering indicates the device is connecting to a source
	StateBuffering PlaybackState = "buffering"
	// StatePaused indicates playback is paused
	StatePaused PlaybackState = "paused"
	// StateStopped indicates playback is stopped
	StateStopped PlaybackState = "stopped"
)

// ParsePlaybackState maps the device's <state> value onto a PlaybackState.
// Unknown values are treated as stopped.
func ParsePlaybackState(raw string) PlaybackState {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "play", "stream":
		return StatePlaying
	case "connecting":
		return StateBuffering
	case "pause":
		return StatePaused
	default:
		return StateStopped
	}
}

// PlayerIdentity identifies a streamer on the network
type PlayerIdentity struct {
	Host         string
	Port         int
	FriendlyName string
}

// Address returns host:port, using the default control port when unset
func (p PlayerIdentity) Address() string {
	port := p.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(p.Host, strconv.Itoa(port))
}

// Name returns the friendly name, falling back to the host
func (p PlayerIdentity) Name() string {
	if p.FriendlyName != "" {
		return p.FriendlyName
	}
	return p.Host
}

// PlayerStatus is an immutable snapshot of the device's /Status payload.
// Refreshes never mutate a published PlayerStatus; they build a new one.
type PlayerStatus struct {
	TrackTitle     string
	Artist         string
	Album          string
	State          PlaybackState
	Volume         int
	Muted          bool
	QueuePosition  int
	ElapsedSeconds int
	TotalSeconds   int
	ServiceName    string
	Service        string
	StreamFormat   string
	Quality        string
	DB             float64
	SyncToken      string
	PlaylistID     int
	ImageURL       string
	AlbumID        string
	ArtistID       string
	InputID        string
	CanSeek        bool
	Shuffle        bool
	Repeat         int
	Favourite      bool
}

// SameTrack reports whether two snapshots describe the same queue item.
// A change of title, album or queue position is a track change.
func (s PlayerStatus) SameTrack(other PlayerStatus) bool {
	return s.TrackTitle == other.TrackTitle &&
		s.Album == other.Album &&
		s.QueuePosition == other.QueuePosition
}

// PlaylistEntry is a single item of the play queue
type PlaylistEntry struct {
	Index    int
	Title    string
	Artist   string
	Album    string
	SourceFn string
}

// Playlist is the play queue. Revision is the device's playlist id.
type Playlist struct {
	Revision int
	Entries  []PlaylistEntry
}

// BrowseNode is one item of a browse listing
type BrowseNode struct {
	DisplayText    string
	SecondaryText  string
	BrowseKey      string
	PlayURL        string
	ActionURL      string
	SearchCapable  bool
	SearchKey      string
	ImageURL       string
	PageCursor     string
	ContextMenuKey string
	Favourite      bool
	Type           string
	InputType      string
}

// Playable reports whether the node can be played directly
func (n BrowseNode) Playable() bool {
	return n.PlayURL != ""
}

// BrowsePage is one page of a browse listing
type BrowsePage struct {
	Nodes      []BrowseNode
	NextCursor string
	SearchKey  string
}

// ServiceEntry is an mDNS advertisement resolved by a discovery backend
type ServiceEntry struct {
	Instance string
	HostName string
	IPv4     []net.IP
	Port     int
}

// IdentityKind selects which enrichment an IdentityKey asks for
type IdentityKind string

const (
	// KindAlbum keys album information by (artist, album)
	KindAlbum IdentityKind = "album"
	// KindTrack keys track descriptions by (artist, title)
	KindTrack IdentityKind = "track"
	// KindArtwork keys cover art by image URL
	KindArtwork IdentityKind = "artwork"
)

// IdentityKey is the composite key used to deduplicate and cache enrichment lookups
type IdentityKey struct {
	Kind   IdentityKind
	Artist string
	Title  string
}

// String returns the normalized cache key
func (k IdentityKey) String() string {
	if k.Kind == KindArtwork {
		// artwork URLs carry case-sensitive query parameters
		return string(k.Kind) + "|" + strings.TrimSpace(k.Artist) + "|" + strings.TrimSpace(k.Title)
	}
	return string(k.Kind) + "|" + normalizeKeyPart(k.Artist) + "|" + normalizeKeyPart(k.Title)
}

// Empty reports whether the key has nothing to look up
func (k IdentityKey) Empty() bool {
	switch k.Kind {
	case KindArtwork:
		return strings.TrimSpace(k.Title) == ""
	case KindTrack:
		return strings.TrimSpace(k.Title) == ""
	default:
		return strings.TrimSpace(k.Artist) == "" || strings.TrimSpace(k.Title) == ""
	}
}

func normalizeKeyPart(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// AlbumKey returns the album identity of a status snapshot
func (s PlayerStatus) AlbumKey() IdentityKey {
	return IdentityKey{Kind: KindAlbum, Artist: s.Artist, Title: s.Album}
}

// TrackKey returns the track identity of a status snapshot
func (s PlayerStatus) TrackKey() IdentityKey {
	return IdentityKey{Kind: KindTrack, Artist: s.Artist, Title: s.TrackTitle}
}

// ArtworkKey returns the artwork identity of a status snapshot
func (s PlayerStatus) ArtworkKey() IdentityKey {
	return IdentityKey{Kind: KindArtwork, Title: s.ImageURL}
}

// EnrichmentEntry is descriptive metadata fetched from an external service
type EnrichmentEntry struct {
	Key         IdentityKey
	Year        string
	Label       string
	Country     string
	ReleaseType string
	Genres      []string
	Description string
	Artwork     image.Image
	FetchedAt   time.Time
}

// EnrichmentState is the lifecycle of a lookup as seen by the UI
type EnrichmentState string

const (
	// EnrichmentPending means a fetch is scheduled or in flight
	EnrichmentPending EnrichmentState = "pending"
	// EnrichmentReady means Entry holds a result
	EnrichmentReady EnrichmentState = "ready"
	// EnrichmentFailed means nothing usable was found; the UI shows "no info"
	EnrichmentFailed EnrichmentState = "failed"
)

// Enrichment is what the UI reads for one identity key
type Enrichment struct {
	Key   IdentityKey
	State EnrichmentState
	Entry *EnrichmentEntry
	Err   error
}

// Done reports whether the lookup reached a final state
func (e Enrichment) Done() bool {
	return e.State == EnrichmentReady || e.State == EnrichmentFailed
}

// TrackChange is emitted by the synchronizer when the playing item changes.
// ArtworkOnly marks a new image within the same track, as radio streams do.
type TrackChange struct {
	SessionID   string
	Previous    PlayerStatus
	Current     PlayerStatus
	ArtworkOnly bool
}

// View is the complete snapshot handed to the UI.
// A published View is never modified; readers may keep the pointer.
type View struct {
	SessionID      string
	Player         PlayerIdentity
	Status         *PlayerStatus
	Playlist       *Playlist
	Album          Enrichment
	Track          Enrichment
	Artwork        Enrichment
	ConnectionLost bool
	Failures       int
	UpdatedAt      time.Time
}
