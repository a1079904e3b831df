// package formatter renders playback state, devices and play history for the terminal (lipgloss) or as JSON
package formatter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/playback"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
)

// Format selects the output representation.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat accepts "text" (or empty) and "json".
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

const barWidth = 30

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ProgressBar renders position within duration as a fixed width bar followed by "m:ss / m:ss".
func ProgressBar(positionMS, durationMS, width int) string {
	if width <= 0 {
		width = barWidth
	}
	filled := 0
	if durationMS > 0 {
		filled = min(width, max(0, positionMS*width/durationMS))
	}
	bar := strings.Repeat("━", filled) + Muted(strings.Repeat("─", width-filled))
	return fmt.Sprintf("%s %s / %s", bar, shared.FormatPosition(positionMS), shared.FormatPosition(durationMS))
}

// NowPlaying writes the snapshot as a short block: track, artists, progress and modes.
func NowPlaying(w io.Writer, snap models.PlaybackSnapshot) {
	if snap.CurrentTrack == nil {
		fmt.Fprintln(w, Muted("Nothing playing"))
		return
	}

	track := snap.CurrentTrack
	marker := "⏸"
	if snap.IsPlaying {
		marker = OK("▶")
	}

	fmt.Fprintf(w, "%s %s\n", marker, Title(track.Name))
	fmt.Fprintf(w, "  %s\n", track.ArtistLine())
	if track.Album != "" {
		fmt.Fprintf(w, "  %s\n", Muted(track.Album))
	}
	fmt.Fprintf(w, "  %s\n", ProgressBar(snap.PositionMS, snap.DurationMS, barWidth))
	fmt.Fprintf(w, "  shuffle %s  repeat %s\n", onOff(snap.Shuffle), snap.Repeat)
	if snap.ContextURI != "" {
		fmt.Fprintf(w, "  %s\n", Muted(snap.ContextURI))
	}
}

// RemoteState writes the Web API's view of playback, used by headless commands.
func RemoteState(w io.Writer, st *services.PlaybackState) {
	if st == nil {
		fmt.Fprintln(w, Muted("Nothing playing on any device"))
		return
	}

	snap := models.PlaybackSnapshot{
		IsActive:     true,
		HasContext:   st.ContextURI != "",
		IsPlaying:    st.IsPlaying,
		PositionMS:   st.ProgressMS,
		Shuffle:      st.Shuffle,
		Repeat:       st.Repeat,
		ContextURI:   st.ContextURI,
		CurrentTrack: st.Item,
	}
	if st.Item != nil {
		snap.DurationMS = st.Item.DurationMS
	}
	snap.Normalize()

	NowPlaying(w, snap)
	if st.Device != nil {
		fmt.Fprintf(w, "  on %s\n", deviceLabel(*st.Device))
	}
}

// State writes the combined controller state: connection, now playing, devices and the last error.
func State(w io.Writer, st playback.State) {
	if st.Phase != playback.PhaseUninitialized {
		status := Warn(st.Phase.String())
		if st.Ready {
			status = OK(st.Phase.String())
		}
		fmt.Fprintf(w, "%s %s\n", Title("Session"), status)
	}
	if st.DeviceID != "" {
		fmt.Fprintf(w, "%s %s\n", Title("Device"), st.DeviceID)
	}
	fmt.Fprintln(w)

	NowPlaying(w, st.Playback)

	if len(st.Devices) > 0 {
		fmt.Fprintln(w)
		Devices(w, st.Devices)
	}

	if st.LastError != nil {
		fmt.Fprintln(w)
		Error(w, st.LastError)
	}
}

// Devices writes one line per device, marking the active one.
func Devices(w io.Writer, devices []models.Device) {
	if len(devices) == 0 {
		fmt.Fprintln(w, Muted("No devices found"))
		return
	}

	fmt.Fprintln(w, Title(fmt.Sprintf("Devices (%d)", len(devices))))
	for _, d := range devices {
		marker := " "
		if d.IsActive {
			marker = OK("●")
		}
		line := fmt.Sprintf("%s %s", marker, deviceLabel(d))
		if v := d.Volume(); v >= 0 {
			line += fmt.Sprintf(" %s", Muted(fmt.Sprintf("%d%%", v)))
		}
		if d.IsRestricted {
			line += " " + Warn("restricted")
		}
		fmt.Fprintf(w, "%s\n    %s\n", line, Muted(d.ID))
	}
}

// History writes play history entries, most recent first as given.
func History(w io.Writer, entries []*models.PlayedTrack) {
	if len(entries) == 0 {
		fmt.Fprintln(w, Muted("No play history"))
		return
	}

	fmt.Fprintln(w, Title(fmt.Sprintf("History (%d)", len(entries))))
	for _, e := range entries {
		track := e.Track()
		fmt.Fprintf(w, "%4d. %s - %s %s\n",
			e.Sequence(),
			track.ArtistLine(),
			track.Name,
			Muted(fmt.Sprintf("[%s] %s", shared.FormatPosition(track.DurationMS), e.PlayedAt().Local().Format("2006-01-02 15:04"))),
		)
	}
}

// HistoryEntry is the JSON shape of a play history row.
type HistoryEntry struct {
	ID         string       `json:"id"`
	Sequence   int          `json:"sequence"`
	Track      models.Track `json:"track"`
	ContextURI string       `json:"context_uri,omitempty"`
	DeviceID   string       `json:"device_id,omitempty"`
	PlayedAt   string       `json:"played_at"`
}

// HistoryJSON converts entries to their JSON shape.
func HistoryJSON(entries []*models.PlayedTrack) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntry{
			ID:         e.ID(),
			Sequence:   e.Sequence(),
			Track:      e.Track(),
			ContextURI: e.ContextURI(),
			DeviceID:   e.DeviceID(),
			PlayedAt:   e.PlayedAt().UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	return out
}

// Error writes err with its user-facing hint when it is a classified playback error.
func Error(w io.Writer, err error) {
	msg := err.Error()
	var perr *playback.Error
	if errors.As(err, &perr) {
		msg = perr.Message
	}
	fmt.Fprintf(w, "%s %s\n", Err("✗"), msg)
}

func deviceLabel(d models.Device) string {
	name := d.Name
	if name == "" {
		name = d.ID
	}
	if d.Type != "" {
		return fmt.Sprintf("%s (%s)", name, d.Type)
	}
	return name
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
