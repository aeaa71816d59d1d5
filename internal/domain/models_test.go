package domain

import "testing"

func TestParsePlaybackState(t *testing.T) {
	tests := []struct {
		raw  string
		want PlaybackState
	}{
		{"play", StatePlaying},
		{"stream", StatePlaying},
		{" PLAY ", StatePlaying},
		{"connecting", StateBuffering},
		{"pause", StatePaused},
		{"stop", StateStopped},
		{"", StateStopped},
		{"something-new", StateStopped},
	}
	for _, tt := range tests {
		if got := ParsePlaybackState(tt.raw); got != tt.want {
			t.Errorf("ParsePlaybackState(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestPlayerIdentity(t *testing.T) {
	id := PlayerIdentity{Host: "10.0.0.2"}
	if got := id.Address(); got != "10.0.0.2:11000" {
		t.Errorf("Address() = %q", got)
	}
	if got := id.Name(); got != "10.0.0.2" {
		t.Errorf("Name() = %q", got)
	}

	id = PlayerIdentity{Host: "fe80::1", Port: 8080, FriendlyName: "Kitchen"}
	if got := id.Address(); got != "[fe80::1]:8080" {
		t.Errorf("Address() = %q", got)
	}
	if got := id.Name(); got != "Kitchen" {
		t.Errorf("Name() = %q", got)
	}
}

func TestSameTrack(t *testing.T) {
	base := PlayerStatus{TrackTitle: "Hello", Album: "25", QueuePosition: 3, ElapsedSeconds: 10}

	tests := []struct {
		name  string
		other PlayerStatus
		want  bool
	}{
		{"elapsed and volume differ", PlayerStatus{TrackTitle: "Hello", Album: "25", QueuePosition: 3, ElapsedSeconds: 99, Volume: 40}, true},
		{"title differs", PlayerStatus{TrackTitle: "Skyfall", Album: "25", QueuePosition: 3}, false},
		{"album differs", PlayerStatus{TrackTitle: "Hello", Album: "Hello (Single)", QueuePosition: 3}, false},
		{"queue position differs", PlayerStatus{TrackTitle: "Hello", Album: "25", QueuePosition: 4}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.SameTrack(tt.other); got != tt.want {
				t.Errorf("SameTrack = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIdentityKey(t *testing.T) {
	a := IdentityKey{Kind: KindAlbum, Artist: "  Tones  and I ", Title: "Dance Monkey"}
	b := IdentityKey{Kind: KindAlbum, Artist: "tones and i", Title: "DANCE MONKEY"}
	if a.String() != b.String() {
		t.Errorf("keys should normalize equal: %q vs %q", a.String(), b.String())
	}
	if a.String() == (IdentityKey{Kind: KindTrack, Artist: "tones and i", Title: "dance monkey"}).String() {
		t.Error("kind must be part of the key")
	}

	tests := []struct {
		name string
		key  IdentityKey
		want bool
	}{
		{"album needs artist", IdentityKey{Kind: KindAlbum, Title: "25"}, true},
		{"album complete", IdentityKey{Kind: KindAlbum, Artist: "Adele", Title: "25"}, false},
		{"track title only", IdentityKey{Kind: KindTrack, Title: "Hello"}, false},
		{"artwork without url", IdentityKey{Kind: KindArtwork, Title: " "}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.Empty(); got != tt.want {
				t.Errorf("Empty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIdentityKey_ArtworkPreservesCase(t *testing.T) {
	a := IdentityKey{Kind: KindArtwork, Title: "http://p/Artwork?id=AbC"}
	b := IdentityKey{Kind: KindArtwork, Title: "http://p/Artwork?id=abc"}
	if a.String() == b.String() {
		t.Errorf("artwork keys differing in case must stay distinct: %q", a.String())
	}
	padded := IdentityKey{Kind: KindArtwork, Title: " http://p/Artwork?id=AbC "}
	if a.String() != padded.String() {
		t.Errorf("surrounding space should be ignored: %q vs %q", a.String(), padded.String())
	}
}

func TestStatusKeys(t *testing.T) {
	st := PlayerStatus{TrackTitle: "Hello", Artist: "Adele", Album: "25", ImageURL: "http://x/Artwork"}
	if k := st.AlbumKey(); k.Kind != KindAlbum || k.Title != "25" || k.Artist != "Adele" {
		t.Errorf("AlbumKey = %+v", k)
	}
	if k := st.TrackKey(); k.Kind != KindTrack || k.Title != "Hello" {
		t.Errorf("TrackKey = %+v", k)
	}
	if k := st.ArtworkKey(); k.Kind != KindArtwork || k.Title != "http://x/Artwork" {
		t.Errorf("ArtworkKey = %+v", k)
	}
}

func TestEnrichmentDone(t *testing.T) {
	for state, want := range map[EnrichmentState]bool{
		EnrichmentPending: false,
		EnrichmentReady:   true,
		EnrichmentFailed:  true,
	} {
		if got := (Enrichment{State: state}).Done(); got != want {
			t.Errorf("Done(%s) = %v, want %v", state, got, want)
		}
	}
}
