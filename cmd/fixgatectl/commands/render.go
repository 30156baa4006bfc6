package commands

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/marmos91/fixgate/pkg/apiclient"
)

// Rendering for fixgatectl output. Every command supports table output
// for operators and JSON for scripting; the tables know the FIX domain
// (sequence counters, heartbeat intervals, wire frames with SOH shown
// as '|') instead of going through a generic renderer.

// newTable returns a tablewriter configured for the borderless,
// left-aligned style every fixgatectl table uses.
func newTable(w io.Writer, headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

// renderSessions prints the session list: one row per counterparty
// with its state, sequence expectations and liveness.
func renderSessions(w io.Writer, sessions []apiclient.SessionInfo) {
	table := newTable(w, "SESSION", "STATUS", "PEER", "IN", "OUT", "HB", "LAST IN")
	for _, s := range sessions {
		table.Append([]string{
			s.ID,
			s.Status,
			orDash(s.PeerAddr),
			strconv.FormatUint(uint64(s.IncomingNext), 10),
			strconv.FormatUint(uint64(s.OutgoingNext), 10),
			s.Heartbeat.String(),
			renderTime(s.LastInbound),
		})
	}
	table.Render()
}

// renderSessionDetail prints one session as key: value lines.
func renderSessionDetail(w io.Writer, s *apiclient.SessionInfo) {
	pairs := [][2]string{
		{"Session", s.ID},
		{"Status", s.Status},
		{"Peer", orDash(s.PeerAddr)},
		{"FIX version", s.FIXVersion},
		{"Incoming next", strconv.FormatUint(uint64(s.IncomingNext), 10)},
		{"Outgoing next", strconv.FormatUint(uint64(s.OutgoingNext), 10)},
		{"Heartbeat", s.Heartbeat.String()},
		{"Last inbound", renderTime(s.LastInbound)},
		{"Last outbound", renderTime(s.LastOutbound)},
		{"Started", renderTime(s.StartTime)},
		{"Messages in", strconv.FormatUint(s.TotalIn, 10)},
		{"Messages out", strconv.FormatUint(s.TotalOut, 10)},
		{"Last error", orDash(s.LastError)},
		{"Termination", orDash(s.Termination)},
	}

	width := 0
	for _, p := range pairs {
		if len(p[0]) > width {
			width = len(p[0])
		}
	}
	for _, p := range pairs {
		fmt.Fprintf(w, "%-*s  %s\n", width+1, p[0]+":", p[1])
	}
}

// renderReplay prints stored outbound messages, decoding each frame
// and showing SOH separators as '|'.
func renderReplay(w io.Writer, msgs []apiclient.StoredMessage) {
	table := newTable(w, "SEQ", "TYPE", "SENT", "ARCHIVED", "MESSAGE")
	for _, m := range msgs {
		table.Append([]string{
			strconv.FormatUint(uint64(m.Seq), 10),
			m.MsgType,
			m.SentAt.Local().Format("15:04:05.000"),
			strconv.FormatBool(m.Archived),
			renderFrame(m.Raw),
		})
	}
	table.Render()
}

// renderAudit prints a session's audit trail.
func renderAudit(w io.Writer, recs []apiclient.AuditRecord) {
	table := newTable(w, "TIME", "EVENT", "TYPE", "DIR", "TEXT")
	for _, r := range recs {
		table.Append([]string{
			r.At.Local().Format("15:04:05.000"),
			r.Event,
			orDash(r.MsgType),
			orDash(r.Direction),
			r.Text,
		})
	}
	table.Render()
}

// renderJSON prints any payload as indented JSON, for -o json.
func renderJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// renderFrame decodes a base64 wire frame and substitutes '|' for the
// SOH field separators so the message reads on one line.
func renderFrame(b64 string) string {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return b64
	}
	return strings.ReplaceAll(string(raw), "\x01", "|")
}

func renderTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
