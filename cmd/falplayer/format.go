package main

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/austinkregel/falplayer/internal/audio"
)

// formatPosition renders a position in expanded units as m:ss.mmm. Unbounded and
// unknown positions render as "-".
func formatPosition(pos int64, factor, sampleRate int) string {
	if pos < 0 || pos == audio.Unbounded || sampleRate <= 0 || factor <= 0 {
		return "-"
	}
	d := time.Duration(pos/int64(factor)) * time.Second / time.Duration(sampleRate)
	minutes := int(d / time.Minute)
	d -= time.Duration(minutes) * time.Minute
	return fmt.Sprintf("%d:%06.3f", minutes, d.Seconds())
}

func stateColor(state audio.PlaybackState) text.Color {
	switch state {
	case audio.StatePlaying:
		return text.FgGreen
	case audio.StatePaused:
		return text.FgYellow
	default:
		return text.FgHiBlack
	}
}

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	return t
}

// renderStatus prints a session status as a two-column table
func renderStatus(out io.Writer, s audio.Status) {
	t := newTable(out)
	pos := func(v int64) string { return formatPosition(v, s.Factor, s.SampleRate) }

	t.AppendRow(table.Row{"State", stateColor(s.State).Sprint(s.State)})
	if s.Path != "" {
		t.AppendRow(table.Row{"Title", s.Title})
		t.AppendRow(table.Row{"File", s.Path})
		t.AppendRow(table.Row{"Position", fmt.Sprintf("%s / %s", pos(s.Position), pos(s.Total))})
		if s.HasLoop {
			t.AppendRow(table.Row{"Loop", fmt.Sprintf("%s - %s", pos(s.LoopStart), pos(s.LoopEnd))})
			t.AppendRow(table.Row{"Loops", s.Loops})
		} else {
			t.AppendRow(table.Row{"Loop", "none"})
		}
		t.AppendRow(table.Row{"Output", fmt.Sprintf("%d Hz / %d ch (factor %d)", s.SampleRate/max(s.Factor, 1), s.Channels, s.Factor)})
	}
	t.AppendRow(table.Row{"Volume", fmt.Sprintf("%.0f%%", s.Volume*100)})
	t.Render()
}
