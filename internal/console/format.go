package console

import (
	"fmt"
	"strings"

	"github.com/genricoloni/bluctl/internal/domain"
)

var _stateIcons = map[domain.PlaybackState]string{
	domain.StatePlaying:   ">",
	domain.StateBuffering: "~",
	domain.StatePaused:    "||",
	domain.StateStopped:   "[]",
}

// StatusLine renders a snapshot as one line of text
func StatusLine(v *domain.View) string {
	if v == nil {
		return "not connected (l lists players)"
	}
	if v.Status == nil {
		return fmt.Sprintf("%s: waiting for status", v.Player.Name())
	}
	st := v.Status

	var b strings.Builder
	b.WriteString(_stateIcons[st.State])
	b.WriteString(" ")
	b.WriteString(st.TrackTitle)
	if st.Artist != "" {
		b.WriteString(" - " + st.Artist)
	}
	if st.Album != "" {
		b.WriteString(" [" + st.Album + "]")
	}

	b.WriteString(" " + clock(st.ElapsedSeconds))
	if st.TotalSeconds > 0 {
		b.WriteString("/" + clock(st.TotalSeconds))
	}
	fmt.Fprintf(&b, " vol %d", st.Volume)

	if info := albumInfo(v.Album); info != "" {
		b.WriteString(" | " + info)
	}
	if v.ConnectionLost {
		b.WriteString(" (connection lost)")
	}
	return b.String()
}

func albumInfo(e domain.Enrichment) string {
	switch e.State {
	case domain.EnrichmentPending:
		return "loading..."
	case domain.EnrichmentFailed:
		return "no info"
	}
	if e.Entry == nil {
		return ""
	}

	var parts []string
	if e.Entry.Year != "" {
		parts = append(parts, e.Entry.Year)
	}
	if e.Entry.Label != "" {
		parts = append(parts, e.Entry.Label)
	}
	if len(e.Entry.Genres) > 0 {
		parts = append(parts, strings.Join(e.Entry.Genres, ", "))
	}
	return strings.Join(parts, " / ")
}

func clock(secs int) string {
	if secs >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", secs/3600, secs/60%60, secs%60)
	}
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// Details renders the album and track information of a snapshot, one field per line
func Details(v *domain.View) string {
	if v == nil || v.Status == nil {
		return ""
	}
	st := v.Status

	var b strings.Builder
	fmt.Fprintf(&b, "%s - %s\n", st.TrackTitle, st.Artist)
	if st.Album != "" {
		fmt.Fprintf(&b, "album: %s", st.Album)
		if info := albumInfo(v.Album); info != "" {
			fmt.Fprintf(&b, " (%s)", info)
		}
		b.WriteString("\n")
	}
	if e := v.Album.Entry; e != nil && e.Description != "" {
		fmt.Fprintf(&b, "about the album: %s\n", e.Description)
	}
	switch {
	case v.Track.Entry != nil && v.Track.Entry.Description != "":
		fmt.Fprintf(&b, "about the track: %s\n", v.Track.Entry.Description)
	case v.Track.State == domain.EnrichmentPending:
		b.WriteString("about the track: loading...\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
