package transport

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/genricoloni/bluctl/internal/domain"
)

// statusPayload mirrors the <status> document returned by /Status.
// Numeric fields are kept as strings and parsed leniently: devices omit
// or blank them depending on the source.
type statusPayload struct {
	XMLName      xml.Name `xml:"status"`
	ETag         string   `xml:"etag,attr"`
	Album        string   `xml:"album"`
	Artist       string   `xml:"artist"`
	Name         string   `xml:"name"`
	Title1       string   `xml:"title1"`
	Title2       string   `xml:"title2"`
	Title3       string   `xml:"title3"`
	State        string   `xml:"state"`
	Volume       string   `xml:"volume"`
	Mute         string   `xml:"mute"`
	Song         string   `xml:"song"`
	Secs         string   `xml:"secs"`
	Totlen       string   `xml:"totlen"`
	Service      string   `xml:"service"`
	ServiceName  string   `xml:"serviceName"`
	StreamFormat string   `xml:"streamFormat"`
	Quality      string   `xml:"quality"`
	DB           string   `xml:"db"`
	PID          string   `xml:"pid"`
	Image        string   `xml:"image"`
	AlbumID      string   `xml:"albumid"`
	ArtistID     string   `xml:"artistid"`
	InputID      string   `xml:"inputId"`
	CanSeek      string   `xml:"canSeek"`
	Shuffle      string   `xml:"shuffle"`
	Repeat       string   `xml:"repeat"`
	IsFavourite  string   `xml:"isFavourite"`
}

type syncStatusPayload struct {
	XMLName xml.Name `xml:"SyncStatus"`
	Name    string   `xml:"name,attr"`
	Model   string   `xml:"modelName,attr"`
	ETag    string   `xml:"etag,attr"`
}

type playlistPayload struct {
	XMLName xml.Name      `xml:"playlist"`
	ID      string        `xml:"id,attr"`
	Songs   []songPayload `xml:"song"`
}

type songPayload struct {
	ID         string `xml:"id,attr"`
	Title      string `xml:"title"`
	TitleAttr  string `xml:"title,attr"`
	Artist     string `xml:"art"`
	ArtistAttr string `xml:"art,attr"`
	Album      string `xml:"alb"`
	AlbumAttr  string `xml:"alb,attr"`
	Fn         string `xml:"fn"`
}

// SyncInfo carries the identity part of /SyncStatus
type SyncInfo struct {
	Name  string
	Model string
	ETag  string
}

// DecodeStatus converts a /Status body into a PlayerStatus snapshot
func DecodeStatus(body []byte) (domain.PlayerStatus, error) {
	var p statusPayload
	if err := xml.Unmarshal(body, &p); err != nil {
		return domain.PlayerStatus{}, fmt.Errorf("%w: status: %w", domain.ErrDecode, err)
	}

	status := domain.PlayerStatus{
		TrackTitle:     firstNonEmpty(p.Title1, p.Name),
		Artist:         firstNonEmpty(p.Artist, p.Title2),
		Album:          firstNonEmpty(p.Album, p.Title3),
		State:          domain.ParsePlaybackState(p.State),
		Volume:         clampPercent(safeInt(p.Volume)),
		Muted:          safeInt(p.Mute) == 1,
		QueuePosition:  safeInt(p.Song),
		ElapsedSeconds: safeInt(p.Secs),
		TotalSeconds:   safeInt(p.Totlen),
		ServiceName:    p.ServiceName,
		Service:        p.Service,
		StreamFormat:   p.StreamFormat,
		Quality:        p.Quality,
		DB:             safeFloat(p.DB),
		SyncToken:      p.ETag,
		PlaylistID:     safeInt(p.PID),
		ImageURL:       p.Image,
		AlbumID:        p.AlbumID,
		ArtistID:       p.ArtistID,
		InputID:        p.InputID,
		CanSeek:        safeInt(p.CanSeek) == 1,
		Shuffle:        safeInt(p.Shuffle) == 1,
		Repeat:         safeInt(p.Repeat),
		Favourite:      p.IsFavourite == "1" || p.IsFavourite == "true",
	}
	if status.ElapsedSeconds < 0 {
		status.ElapsedSeconds = 0
	}
	if status.TotalSeconds < 0 {
		status.TotalSeconds = 0
	}
	return status, nil
}

// DecodeSyncStatus converts a /SyncStatus body into SyncInfo
func DecodeSyncStatus(body []byte) (SyncInfo, error) {
	var p syncStatusPayload
	if err := xml.Unmarshal(body, &p); err != nil {
		return SyncInfo{}, fmt.Errorf("%w: sync status: %w", domain.ErrDecode, err)
	}
	return SyncInfo{Name: p.Name, Model: p.Model, ETag: p.ETag}, nil
}

// DecodePlaylist converts a /Playlist body into a Playlist
func DecodePlaylist(body []byte) (domain.Playlist, error) {
	var p playlistPayload
	if err := xml.Unmarshal(body, &p); err != nil {
		return domain.Playlist{}, fmt.Errorf("%w: playlist: %w", domain.ErrDecode, err)
	}

	pl := domain.Playlist{
		Revision: safeInt(p.ID),
		Entries:  make([]domain.PlaylistEntry, 0, len(p.Songs)),
	}
	for i, s := range p.Songs {
		index := i
		if s.ID != "" {
			index = safeInt(s.ID)
		}
		pl.Entries = append(pl.Entries, domain.PlaylistEntry{
			Index:    index,
			Title:    strings.TrimSpace(firstNonEmpty(s.Title, s.TitleAttr)),
			Artist:   strings.TrimSpace(firstNonEmpty(s.Artist, s.ArtistAttr)),
			Album:    strings.TrimSpace(firstNonEmpty(s.Album, s.AlbumAttr)),
			SourceFn: s.Fn,
		})
	}
	return pl, nil
}

// DecodeBrowse converts a /Browse body into a BrowsePage.
// Items are collected at any depth, so entries grouped in <category> elements are included.
func DecodeBrowse(body []byte) (domain.BrowsePage, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return domain.BrowsePage{}, fmt.Errorf("%w: browse: %w", domain.ErrDecode, err)
	}

	root := xmlquery.FindOne(doc, "/browse")
	if root == nil {
		return domain.BrowsePage{}, fmt.Errorf("%w: browse: missing <browse> root", domain.ErrDecode)
	}

	page := domain.BrowsePage{
		NextCursor: root.SelectAttr("nextKey"),
		SearchKey:  root.SelectAttr("searchKey"),
	}

	for _, item := range xmlquery.Find(root, "//item") {
		page.Nodes = append(page.Nodes, domain.BrowseNode{
			DisplayText:    strings.TrimSpace(item.SelectAttr("text")),
			SecondaryText:  item.SelectAttr("text2"),
			BrowseKey:      item.SelectAttr("browseKey"),
			PlayURL:        item.SelectAttr("playURL"),
			ActionURL:      item.SelectAttr("actionURL"),
			SearchCapable:  page.SearchKey != "",
			SearchKey:      page.SearchKey,
			ImageURL:       item.SelectAttr("image"),
			PageCursor:     page.NextCursor,
			ContextMenuKey: item.SelectAttr("contextMenuKey"),
			Favourite:      item.SelectAttr("isFavourite") == "true",
			Type:           item.SelectAttr("type"),
			InputType:      item.SelectAttr("inputType"),
		})
	}
	return page, nil
}

// DecodeSaveEntries reads the number of saved entries from a /Save body
func DecodeSaveEntries(body []byte) (int, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: save: %w", domain.ErrDecode, err)
	}
	entries := xmlquery.FindOne(doc, "//entries")
	if entries == nil {
		return 0, nil
	}
	return safeInt(entries.InnerText()), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func safeInt(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}

func safeFloat(raw string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return f
}

func clampPercent(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
